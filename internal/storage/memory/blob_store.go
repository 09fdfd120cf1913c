package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type blob struct {
	contentType string
	data        []byte
	modified    time.Time
}

// BlobStore keeps uploaded images in memory and serves them over HTTP.
type BlobStore struct {
	mu         sync.RWMutex
	data       map[string]blob
	publicBase string
}

// NewBlobStore creates an in-memory blob store whose URLs start with publicBase.
func NewBlobStore(publicBase string) *BlobStore {
	return &BlobStore{
		data:       make(map[string]blob),
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// PutObject persists a copy of the content and returns its public URL.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = blob{
		contentType: contentType,
		data:        append([]byte(nil), byteData...),
		modified:    time.Now().UTC(),
	}
	return s.publicBase + "/" + path, nil
}

// ServeHTTP serves a stored object. The request path must already have the
// public prefix stripped.
func (s *BlobStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimLeft(r.URL.Path, "/")
	s.mu.RLock()
	b, ok := s.data[path]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if b.contentType != "" {
		w.Header().Set("Content-Type", b.contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, path, b.modified, bytes.NewReader(b.data))
}
