package descriptor

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const (
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLength   = 4
	maxSlugLength  = 32
	fallbackSlug   = "participant"
)

// SubmissionID derives slug(participant)_base36(unix seconds)_random4.
func SubmissionID(participant string, at time.Time) string {
	s := slug.Make(participant)
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-_")
	}
	if s == "" {
		s = fallbackSlug
	}
	return s + "_" + strconv.FormatInt(at.Unix(), 36) + "_" + randomSuffix()
}

func randomSuffix() string {
	var b strings.Builder
	limit := big.NewInt(int64(len(suffixAlphabet)))
	for i := 0; i < suffixLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b.WriteByte(suffixAlphabet[n.Int64()])
	}
	return b.String()
}
