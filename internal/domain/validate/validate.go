// Package validate checks participant identifiers and amino acid sequences.
// Every function is pure and total: any input, including non-strings, yields a result.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Alphabet is the 20 standard amino acids accepted by the predictor.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY"

// Sequence length bounds, inclusive.
const (
	MinSequenceLength   = 10
	MaxSequenceLength   = 5000
	MaxIdentifierLength = 100
)

// Reason classifies a rejected input.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotString      Reason = "not_a_string"
	ReasonEmpty          Reason = "empty"
	ReasonInvalidSymbols Reason = "invalid_symbols"
	ReasonTooShort       Reason = "too_short"
	ReasonTooLong        Reason = "too_long"
	ReasonBadCharacters  Reason = "bad_characters"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SequenceResult is the outcome of validating one raw sequence.
type SequenceResult struct {
	Cleaned string
	Length  int
	Valid   bool
	Reason  Reason
	// Invalid is the sorted set of offending symbols, when Reason is ReasonInvalidSymbols.
	Invalid []string
}

// Message returns a participant facing explanation.
func (r SequenceResult) Message() string {
	switch r.Reason {
	case ReasonNone:
		return ""
	case ReasonNotString:
		return "sequence must be a string"
	case ReasonEmpty:
		return "sequence is empty"
	case ReasonInvalidSymbols:
		return fmt.Sprintf("invalid amino acid characters found: %s", strings.Join(r.Invalid, ", "))
	case ReasonTooShort:
		return fmt.Sprintf("sequence too short (%d residues), minimum is %d", r.Length, MinSequenceLength)
	case ReasonTooLong:
		return fmt.Sprintf("sequence too long (%d residues), maximum is %d", r.Length, MaxSequenceLength)
	}
	return string(r.Reason)
}

// Sequence uppercases raw, drops whitespace and any symbol outside Alphabet, and classifies it.
// Whitespace is layout, not a symbol, so "MKT LLI" is the same sequence as "MKTLLI".
func Sequence(raw any) SequenceResult {
	s, ok := raw.(string)
	if !ok {
		return SequenceResult{Reason: ReasonNotString}
	}

	var b strings.Builder
	b.Grow(len(s))
	bad := map[string]struct{}{}
	for _, r := range strings.ToUpper(s) {
		switch {
		case unicode.IsSpace(r):
		case r < unicode.MaxASCII && strings.ContainsRune(Alphabet, r):
			b.WriteRune(r)
		default:
			bad[string(r)] = struct{}{}
		}
	}

	res := SequenceResult{Cleaned: b.String()}
	res.Length = len(res.Cleaned)

	switch {
	case res.Length == 0 && len(bad) == 0:
		res.Reason = ReasonEmpty
	case len(bad) > 0:
		res.Reason = ReasonInvalidSymbols
		res.Invalid = make([]string, 0, len(bad))
		for k := range bad {
			res.Invalid = append(res.Invalid, k)
		}
		sort.Strings(res.Invalid)
	case res.Length < MinSequenceLength:
		res.Reason = ReasonTooShort
	case res.Length > MaxSequenceLength:
		res.Reason = ReasonTooLong
	default:
		res.Valid = true
	}
	return res
}

// IdentifierResult is the outcome of validating an identifier.
type IdentifierResult struct {
	Value  string
	Valid  bool
	Reason Reason
}

// Message returns a participant facing explanation for field.
func (r IdentifierResult) Message(field string) string {
	switch r.Reason {
	case ReasonNone:
		return ""
	case ReasonNotString:
		return field + " must be a string"
	case ReasonEmpty:
		return field + " is required"
	case ReasonTooLong:
		return fmt.Sprintf("%s is too long, maximum is %d characters", field, MaxIdentifierLength)
	case ReasonBadCharacters:
		return field + " contains invalid characters, use only letters, numbers, underscores and hyphens"
	}
	return string(r.Reason)
}

// Identifier accepts non-empty strings of at most 100 characters matching [A-Za-z0-9_-]+.
func Identifier(raw any) IdentifierResult {
	s, ok := raw.(string)
	if !ok {
		return IdentifierResult{Reason: ReasonNotString}
	}
	res := IdentifierResult{Value: s}
	switch {
	case s == "":
		res.Reason = ReasonEmpty
	case len(s) > MaxIdentifierLength:
		res.Reason = ReasonTooLong
	case !identifierPattern.MatchString(s):
		res.Reason = ReasonBadCharacters
	default:
		res.Valid = true
	}
	return res
}
