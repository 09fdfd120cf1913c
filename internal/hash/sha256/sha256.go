// Package sha256 derives content-addressed keys for uploaded files.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hasher hashes file contents with SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashReader streams r through SHA-256 and returns the hex digest.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	d := sha256.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("hash reader: %w", err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// ObjectKey names a blob after its digest, keeping ext (with leading dot) and an optional prefix.
func (h *Hasher) ObjectKey(prefix string, data []byte, ext string) (string, error) {
	digest, err := h.Hash(data)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return digest + ext, nil
	}
	return prefix + "/" + digest + ext, nil
}
