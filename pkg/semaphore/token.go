package semaphore

import (
	"math"
	"strconv"
	"time"
)

// Kind discriminates the two token spaces. Canonical slot tokens are the
// integers 0..N-1 minted at pool creation; opaque tokens are random strings
// minted at runtime. Both are valid lease identifiers, but reconciliation
// only ever considers the integer subset.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindIndex
	KindOpaque
)

// Token identifies one unit of the resource pool.
// The zero value is not a valid token.
type Token struct {
	kind   Kind
	index  int
	opaque string
}

// IndexToken returns the canonical token for slot i.
func IndexToken(i int) Token {
	return Token{kind: KindIndex, index: i}
}

// OpaqueToken returns a token wrapping a minted random identifier.
func OpaqueToken(s string) Token {
	return Token{kind: KindOpaque, opaque: s}
}

// ParseToken maps a stored token string back into the typed union. Only the
// exact decimal form of a non-negative integer parses as an index token, so
// "007" stays opaque and never collides with slot 7 during reconciliation.
func ParseToken(raw string) Token {
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 && raw == strconv.Itoa(n) {
		return IndexToken(n)
	}

	return OpaqueToken(raw)
}

// Kind returns the token space this token belongs to.
func (t Token) Kind() Kind {
	return t.kind
}

// Index returns the slot number for an index token.
func (t Token) Index() (int, bool) {
	return t.index, t.kind == KindIndex
}

// IsZero reports whether the token is the invalid zero value.
func (t Token) IsZero() bool {
	return t.kind == KindInvalid
}

// String returns the wire form of the token.
func (t Token) String() string {
	switch t.kind {
	case KindIndex:
		return strconv.Itoa(t.index)
	case KindOpaque:
		return t.opaque
	}

	return ""
}

// formatTime serializes an acquisition timestamp as fractional unix seconds,
// the form shared by every process touching the grabbed registry.
func formatTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func parseTime(raw string) (time.Time, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}

	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}
