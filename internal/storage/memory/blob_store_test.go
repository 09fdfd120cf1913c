package memory

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	blobs := NewBlobStore("/media/")
	payload := []byte("content")
	uri, err := blobs.PutObject(context.Background(), "images/abc.png", "image/png", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "/media/images/abc.png", uri)

	payload[0] = 'C'
	assert.Equal(t, "content", string(blobs.data["images/abc.png"].data))
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore("/media").PutObject(context.Background(), "/", "image/png", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestBlobStoreServeHTTP(t *testing.T) {
	t.Parallel()

	blobs := NewBlobStore("/media")
	_, err := blobs.PutObject(context.Background(), "images/abc.gif", "image/gif", bytes.NewReader([]byte("GIF89a")))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	blobs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/abc.gif", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "GIF89a", rec.Body.String())

	rec = httptest.NewRecorder()
	blobs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/missing.gif", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
