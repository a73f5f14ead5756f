// Package artifact persists published result artifacts and leaderboards.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/okian/foldboard/internal/adapters/artifact")

var (
	// ErrNotFound is returned by Get for missing keys.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidKey is returned for keys escaping the sink root.
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Sink stores artifacts under slash separated keys.
type Sink interface {
	// Put creates or overwrites key with the contents of reader.
	Put(ctx context.Context, key string, reader io.ReadSeeker, length int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Identifier names the destination for logs.
	Identifier() string
}

// CleanKey normalizes key and rejects absolute or parent-relative keys.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c, nil
}

// PutBytes stores b under key.
func PutBytes(ctx context.Context, s Sink, key string, b []byte) error {
	return s.Put(ctx, key, bytes.NewReader(b), int64(len(b)))
}

// PutFile copies a local file to key.
func PutFile(ctx context.Context, s Sink, key, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	return s.Put(ctx, key, f, st.Size())
}

// ResultKey is the key of a file inside a submission's result artifact.
func ResultKey(token, name string) string {
	return "results/" + token + "/" + name
}

// LeaderboardKey is the key of a session leaderboard.
func LeaderboardKey(session string) string {
	return "leaderboards/" + session + ".json"
}
