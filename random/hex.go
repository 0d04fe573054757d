package random

import (
	"crypto/rand"
	"encoding/hex"
)

// Bytes generates n random bytes. It panics if the system source fails.
func Bytes(n int) []byte {
	bytes := make([]byte, n)

	_, err := rand.Read(bytes)
	if err != nil {
		panic(err)
	}

	return bytes
}

// String returns n random bytes, hex encoded.
func String(n int) string {
	return hex.EncodeToString(Bytes(n))
}
