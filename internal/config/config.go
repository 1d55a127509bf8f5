// Package config loads process configuration from an optional YAML file,
// a .env file and ASSETCORE_* environment variables, in increasing order of
// precedence, and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"assetcore/internal/blob"
	"assetcore/internal/core"
	"assetcore/internal/infra/idempotency"
	"assetcore/internal/infra/queue"
	"assetcore/pkg/domain"
)

// Config is the full process configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	HTTP        HTTPConfig        `yaml:"http"`
	Storage     StorageConfig     `yaml:"storage"`
	Blob        BlobConfig        `yaml:"blob"`
	Queue       queue.Config      `yaml:"queue"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Codes       CodesConfig       `yaml:"codes"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"gte=0"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// BlobConfig selects the image store.
type BlobConfig struct {
	Driver string         `yaml:"driver" validate:"omitempty,oneof=fs s3 gcs memory"`
	FSRoot string         `yaml:"fs_root"`
	S3     blob.S3Config  `yaml:"s3" validate:"-"`
	GCS    blob.GCSConfig `yaml:"gcs" validate:"-"`
}

// IdempotencyConfig selects where Idempotency-Key responses are kept.
type IdempotencyConfig struct {
	Driver    string        `yaml:"driver" validate:"omitempty,oneof=memory redis none"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
	RedisAddr string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
}

// CodesConfig controls generated permanent codes and label locators.
type CodesConfig struct {
	Prefix  string `yaml:"prefix" validate:"omitempty,alphanum,uppercase"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// TracingConfig selects the span sink.
type TracingConfig struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=none json otel"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Storage:     StorageConfig{Driver: string(core.StorageSQLite), SQLitePath: "assetcore.db"},
		Blob:        BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "blobdata"},
		Queue:       queue.Config{Driver: queue.DriverMemory},
		Idempotency: IdempotencyConfig{Driver: "memory", TTL: idempotency.DefaultTTL},
		Codes:       CodesConfig{Prefix: domain.DefaultCodePrefix},
		Tracing:     TracingConfig{Exporter: "none"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// path is non-empty, then .env, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(filepath.Clean(path), &cfg); err != nil {
			return cfg, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate checks field constraints and the settings of the selected
// drivers.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverS3:
		if err := v.Struct(c.Blob.S3); err != nil {
			return fmt.Errorf("invalid blob.s3 config: %w", err)
		}
	case blob.DriverGCS:
		if err := v.Struct(c.Blob.GCS); err != nil {
			return fmt.Errorf("invalid blob.gcs config: %w", err)
		}
	}
	if c.Idempotency.Driver == "redis" && c.Idempotency.RedisAddr == "" {
		return errors.New("invalid config: idempotency.redis_addr is required for the redis driver")
	}
	switch c.Queue.Driver {
	case queue.DriverRedis:
		if err := v.Struct(c.Queue.Redis); err != nil {
			return fmt.Errorf("invalid queue.redis config: %w", err)
		}
	case queue.DriverPubSub:
		if err := v.Struct(c.Queue.PubSub); err != nil {
			return fmt.Errorf("invalid queue.pubsub config: %w", err)
		}
	}
	return nil
}

// StorageConfig converts to the store opener's configuration.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig converts to the blob facade's configuration.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3:     c.Blob.S3,
		GCS:    c.Blob.GCS,
	}
}

type envBinding struct {
	key string
	set func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func lower(dst *string) func(string) error {
	return func(v string) error { *dst = strings.ToLower(v); return nil }
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func applyEnv(c *Config) error {
	var queueDriver string
	bindings := []envBinding{
		{"ASSETCORE_LOG_LEVEL", lower(&c.LogLevel)},
		{"ASSETCORE_HTTP_ADDR", str(&c.HTTP.Addr)},
		{"ASSETCORE_HTTP_SHUTDOWN_TIMEOUT", duration(&c.HTTP.ShutdownTimeout)},
		{"ASSETCORE_STORAGE_DRIVER", lower(&c.Storage.Driver)},
		{"ASSETCORE_SQLITE_PATH", str(&c.Storage.SQLitePath)},
		{"ASSETCORE_POSTGRES_DSN", str(&c.Storage.PostgresDSN)},
		{"ASSETCORE_BLOB_DRIVER", lower(&c.Blob.Driver)},
		{"ASSETCORE_BLOB_FS_ROOT", str(&c.Blob.FSRoot)},
		{"ASSETCORE_BLOB_S3_BUCKET", str(&c.Blob.S3.Bucket)},
		{"ASSETCORE_BLOB_S3_REGION", str(&c.Blob.S3.Region)},
		{"ASSETCORE_BLOB_S3_ENDPOINT", str(&c.Blob.S3.Endpoint)},
		{"ASSETCORE_BLOB_S3_PATH_STYLE", boolean(&c.Blob.S3.PathStyle)},
		{"ASSETCORE_BLOB_S3_ACCESS_KEY_ID", str(&c.Blob.S3.AccessKeyID)},
		{"ASSETCORE_BLOB_S3_SECRET_ACCESS_KEY", str(&c.Blob.S3.SecretAccessKey)},
		{"ASSETCORE_BLOB_GCS_BUCKET", str(&c.Blob.GCS.Bucket)},
		{"ASSETCORE_BLOB_GCS_CREDENTIALS_JSON", str(&c.Blob.GCS.CredentialsJSON)},
		{"ASSETCORE_QUEUE_DRIVER", lower(&queueDriver)},
		{"ASSETCORE_QUEUE_CAPACITY", integer(&c.Queue.Capacity)},
		{"ASSETCORE_REDIS_ADDR", str(&c.Queue.Redis.Addr)},
		{"ASSETCORE_REDIS_PASSWORD", str(&c.Queue.Redis.Password)},
		{"ASSETCORE_REDIS_DB", integer(&c.Queue.Redis.DB)},
		{"ASSETCORE_QUEUE_REDIS_KEY", str(&c.Queue.Redis.Key)},
		{"ASSETCORE_PUBSUB_PROJECT_ID", str(&c.Queue.PubSub.ProjectID)},
		{"ASSETCORE_PUBSUB_TOPIC", str(&c.Queue.PubSub.TopicID)},
		{"ASSETCORE_PUBSUB_SUBSCRIPTION", str(&c.Queue.PubSub.SubscriptionID)},
		{"ASSETCORE_PUBSUB_CREDENTIALS_JSON", str(&c.Queue.PubSub.CredentialsJSON)},
		{"ASSETCORE_IDEMPOTENCY_DRIVER", lower(&c.Idempotency.Driver)},
		{"ASSETCORE_IDEMPOTENCY_TTL", duration(&c.Idempotency.TTL)},
		{"ASSETCORE_CODE_PREFIX", str(&c.Codes.Prefix)},
		{"ASSETCORE_BASE_URL", str(&c.Codes.BaseURL)},
		{"ASSETCORE_TRACING_EXPORTER", lower(&c.Tracing.Exporter)},
	}
	for _, b := range bindings {
		v, ok := os.LookupEnv(b.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
	}
	if queueDriver != "" {
		c.Queue.Driver = queue.Driver(queueDriver)
	}
	if c.Idempotency.Driver == "redis" && c.Idempotency.RedisAddr == "" {
		c.Idempotency.RedisAddr = c.Queue.Redis.Addr
	}
	return nil
}
