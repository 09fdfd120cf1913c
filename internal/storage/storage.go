// Package storage selects the blob store that keeps uploaded article images.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/storage/gcs"
	"github.com/canalenergetico/canal-web/internal/storage/local"
	"github.com/canalenergetico/canal-web/internal/storage/memory"
)

// BlobStore persists an object and returns the URL readers fetch it from.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Blobs is the configured blob store. Handler is non-nil when the site must
// serve the objects itself under the public base URL; Close releases clients.
type Blobs struct {
	Store   BlobStore
	Handler http.Handler
	Close   func() error
}

// New builds the blob store named by cfg.Provider.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Blobs, error) {
	logger = logging.OrNop(logger).Named("storage")
	noClose := func() error { return nil }

	switch cfg.Provider {
	case "", "memory":
		bs := memory.NewBlobStore(cfg.PublicBaseURL)
		logger.Info("Using in-memory blob store")
		return Blobs{Store: bs, Handler: bs, Close: noClose}, nil
	case "local":
		bs, err := local.New(local.Config{BaseDir: cfg.BaseDir, PublicBaseURL: cfg.PublicBaseURL})
		if err != nil {
			return Blobs{}, fmt.Errorf("local blob store: %w", err)
		}
		logger.Info("Using local blob store", zap.String("base_dir", cfg.BaseDir))
		return Blobs{Store: bs, Handler: bs, Close: noClose}, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return Blobs{}, fmt.Errorf("failed to create GCS client: %w", err)
		}
		bs, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, PublicBaseURL: cfg.PublicBaseURL})
		if err != nil {
			_ = client.Close()
			return Blobs{}, err
		}
		logger.Info("Using GCS blob store", zap.String("bucket", cfg.GCSBucket))
		return Blobs{Store: bs, Close: client.Close}, nil
	default:
		return Blobs{}, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
