// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import (
	"strings"
	"testing"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if got != helloDigest {
		t.Fatalf("expected %s, got %s", helloDigest, got)
	}
	streamed, err := h.HashReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("HashReader() error = %v", err)
	}
	if streamed != got {
		t.Fatalf("expected streamed digest to match, got %s vs %s", streamed, got)
	}
}

// TestObjectKey checks prefix and extension handling.
func TestObjectKey(t *testing.T) {
	t.Parallel()

	h := New()
	key, err := h.ObjectKey("images", []byte("hello world"), ".png")
	if err != nil {
		t.Fatalf("ObjectKey() error = %v", err)
	}
	if key != "images/"+helloDigest+".png" {
		t.Fatalf("unexpected key %s", key)
	}
	bare, err := h.ObjectKey("", []byte("hello world"), "")
	if err != nil {
		t.Fatalf("ObjectKey() error = %v", err)
	}
	if bare != helloDigest {
		t.Fatalf("unexpected bare key %s", bare)
	}
}
