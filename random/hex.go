// Package random generates secrets for settings left unset.
package random

import (
	"crypto/rand"
	"encoding/hex"
)

func Bytes(n int) []byte {
	b := make([]byte, n)

	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}

	return b
}

// String returns n random bytes hex encoded, so the result has 2n characters.
func String(n int) string {
	return hex.EncodeToString(Bytes(n))
}
