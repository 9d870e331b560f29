// Package hex is a thin facade over hex encoding with the short names used
// throughout the codebase.
package hex

import (
	"encoding/hex"
)

// Enc encodes b as a lowercase hex string.
func Enc(b []byte) string { return hex.EncodeToString(b) }

// Dec decodes a hex string.
func Dec(s string) (b []byte, err error) { return hex.DecodeString(s) }

// Valid reports whether s is a hex string encoding exactly n bytes.
func Valid(s string, n int) bool {
	if len(s) != n*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
