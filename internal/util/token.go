package util

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenLen is the rendered length of an idempotency token (16 random
// bytes, lower-hex).
const TokenLen = 32

// NewToken mints an idempotency token: 128 bits from crypto/rand as a
// fixed-length hex string. Tokens carry no meaning and are never derived
// from entity IDs.
func NewToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process has no usable entropy
		// source; minting predictable tokens instead is not an option.
		panic(err)
	}

	return hex.EncodeToString(b[:])
}
