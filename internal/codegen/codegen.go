// Package codegen produces short codes, either by random sampling from an
// alphabet or by deterministic base62 encoding of a row identifier.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Base62Alphabet orders digits before lowercase before uppercase, so the
// digit value of a symbol is its position in this string.
const Base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ErrCodeSpaceExhausted signals that no code could be produced within the
// configured width or retry budget.
var ErrCodeSpaceExhausted = errors.New("short code space exhausted")

// RandomCode draws length characters from alphabet using a cryptographically
// strong source. Uniqueness is not guaranteed here; the allocation engine
// checks existence and treats the store's unique constraint as authoritative.
func RandomCode(alphabet string, length int) string {
	code := make([]byte, length)
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			panic(fmt.Sprintf("failed to generate random number: %v", err))
		}
		code[i] = alphabet[idx.Int64()]
	}
	return string(code)
}

// EncodeID encodes a non-negative row id in base62, most-significant digit
// first. EncodeID(0) is "0". A result wider than maxWidth returns
// ErrCodeSpaceExhausted rather than a truncated code.
func EncodeID(id int64, maxWidth int) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("cannot encode negative id %d", id)
	}
	if id == 0 {
		return string(Base62Alphabet[0]), nil
	}

	var sb strings.Builder
	n := id
	for n > 0 {
		sb.WriteByte(Base62Alphabet[n%62])
		n /= 62
	}

	b := []byte(sb.String())
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}

	if len(b) > maxWidth {
		return "", fmt.Errorf("%w: id %d encodes to %d characters, max %d",
			ErrCodeSpaceExhausted, id, len(b), maxWidth)
	}
	return string(b), nil
}

// DecodeID inverts EncodeID.
func DecodeID(code string) (int64, error) {
	if code == "" {
		return 0, fmt.Errorf("cannot decode empty code")
	}
	var n int64
	for _, c := range code {
		v := strings.IndexRune(Base62Alphabet, c)
		if v < 0 {
			return 0, fmt.Errorf("invalid base62 character %q", c)
		}
		n = n*62 + int64(v)
	}
	return n, nil
}
