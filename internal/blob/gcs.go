package blob

import (
	"context"

	infraGCS "assetcore/internal/infra/blob/gcs"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig = infraGCS.Config

// NewGCS returns a Store backed by a GCS bucket. The returned store also
// implements io.Closer.
func NewGCS(ctx context.Context, cfg GCSConfig) (Store, error) {
	return infraGCS.New(ctx, cfg)
}
