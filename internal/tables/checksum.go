package tables

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeChecksum returns the SHA-256 of data in manifest form.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// VerifyChecksum reports whether data matches an expected manifest
// checksum.
func VerifyChecksum(data []byte, expected string) bool {
	return ComputeChecksum(data) == expected
}
