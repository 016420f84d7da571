// Package util holds small hex and randomness helpers.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
)

// IsHex reports whether s is a non empty string of hex digits, without prefix.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// IsHexEncodedStringWithLength reports whether s, once the optional 0x
// prefix is removed, is the hex encoding of exactly length bytes.
func IsHexEncodedStringWithLength(s string, length int) bool {
	s = TrimHex(s)
	return len(s) == hex.EncodedLen(length) && IsHex(s)
}

// TrimHex removes a leading 0x or 0X.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// RandomBytes returns n bytes from crypto/rand. Vote nonces and blinding
// inputs depend on it, so a failing system reader is fatal.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}

// RandomHex returns the hex encoding of n random bytes.
func RandomHex(n int) string {
	return hex.EncodeToString(RandomBytes(n))
}
