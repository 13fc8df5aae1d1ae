// Package md5 provides MD5 hashing utilities.
//
// The digest is a deduplication fingerprint, not a security boundary: it
// only needs to make accidental collisions between distinct records
// negligibly likely, for which 128 bits are sufficient.
package md5

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security hash
	"encoding/hex"
)

// Hasher implements product.Hasher using MD5.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) //nolint:gosec // content fingerprint, not a security hash
	return hex.EncodeToString(sum[:]), nil
}
