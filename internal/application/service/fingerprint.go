package service

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes a request body with BLAKE2b-256
func Fingerprint(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
