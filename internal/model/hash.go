package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content checksums. The version suffix allows the
// algorithm to change without colliding with old values.
const (
	DomainSnapshot = "tally/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
