package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver
	// FSRoot is the directory used by the fs driver.
	FSRoot string
	S3     S3Config
	GCS    GCSConfig
}

// ConfigFromEnv reads the blob settings from the process environment:
//
//	ASSETCORE_BLOB_DRIVER        fs|s3|gcs|memory (default fs)
//	ASSETCORE_BLOB_FS_ROOT       directory for the fs driver (default ./blobdata)
//	ASSETCORE_BLOB_S3_BUCKET     bucket, required for s3
//	ASSETCORE_BLOB_S3_REGION     default us-east-1
//	ASSETCORE_BLOB_S3_ENDPOINT   custom endpoint, e.g. MinIO
//	ASSETCORE_BLOB_S3_PATH_STYLE true|false
//	ASSETCORE_BLOB_GCS_BUCKET    bucket, required for gcs
//	ASSETCORE_BLOB_GCS_CREDENTIALS_JSON service account key, optional
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(strings.ToLower(os.Getenv("ASSETCORE_BLOB_DRIVER"))),
		FSRoot: os.Getenv("ASSETCORE_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("ASSETCORE_BLOB_S3_BUCKET"),
			Region:    os.Getenv("ASSETCORE_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("ASSETCORE_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("ASSETCORE_BLOB_S3_PATH_STYLE"), "true"),
		},
		GCS: GCSConfig{
			Bucket:          os.Getenv("ASSETCORE_BLOB_GCS_BUCKET"),
			CredentialsJSON: os.Getenv("ASSETCORE_BLOB_GCS_CREDENTIALS_JSON"),
		},
	}
}

// Open builds the Store described by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverGCS:
		return NewGCS(ctx, cfg.GCS)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// OpenFromEnv is Open(ctx, ConfigFromEnv()).
func OpenFromEnv(ctx context.Context) (Store, error) {
	return Open(ctx, ConfigFromEnv())
}
