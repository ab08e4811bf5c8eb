// Package config loads orai settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Blob backends.
const (
	BlobBolt = "bolt"
	BlobR2   = "r2"
)

// Config is the full server configuration. Keys map one-to-one onto
// upper-cased environment variables (google_client_id -> GOOGLE_CLIENT_ID).
type Config struct {
	Port      int    `mapstructure:"port"`
	WebURL    string `mapstructure:"web_url"`
	GinMode   string `mapstructure:"gin_mode"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	GoogleRedirectURI  string `mapstructure:"google_redirect_uri"`

	CookieSecret string        `mapstructure:"cookie_secret"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`

	DatabasePath string `mapstructure:"database_path"`

	BlobBackend       string `mapstructure:"blob_backend"`
	BlobPath          string `mapstructure:"blob_path"`
	CloudflareAccount string `mapstructure:"cloudflare_account_id"`
	R2AccessKeyID     string `mapstructure:"r2_access_key_id"`
	R2SecretAccessKey string `mapstructure:"r2_secret_access_key"`
	R2Bucket          string `mapstructure:"r2_bucket_name"`
	R2Endpoint        string `mapstructure:"r2_endpoint"`

	SyncMaxMessages      int           `mapstructure:"sync_max_messages"`
	SyncQuery            string        `mapstructure:"sync_query"`
	SyncFetchConcurrency int           `mapstructure:"sync_fetch_concurrency"`
	SyncWorkers          int           `mapstructure:"sync_workers"`
	SyncQueueSize        int           `mapstructure:"sync_queue_size"`
	SyncTimeout          time.Duration `mapstructure:"sync_timeout"`
}

var defaults = map[string]any{
	"port":       3001,
	"web_url":    "http://localhost:3000",
	"gin_mode":   "release",
	"log_level":  "info",
	"log_format": "text",

	"google_client_id":     "",
	"google_client_secret": "",
	"google_redirect_uri":  "http://localhost:3001/auth/google/callback",

	"cookie_secret": "",
	"cookie_secure": false,
	"session_ttl":   "24h",

	"database_path": "data/orai.db",

	"blob_backend":          BlobBolt,
	"blob_path":             "data/blobs.db",
	"cloudflare_account_id": "",
	"r2_access_key_id":      "",
	"r2_secret_access_key":  "",
	"r2_bucket_name":        "",
	"r2_endpoint":           "",

	"sync_max_messages":      100,
	"sync_query":             "category:primary",
	"sync_fetch_concurrency": 10,
	"sync_workers":           4,
	"sync_queue_size":        64,
	"sync_timeout":           "2m",
}

// Load reads .env (if present) into the process environment, then resolves
// every key from, in order of precedence: environment, YAML file at path
// (optional, may be empty), defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings required to serve traffic.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if len(c.CookieSecret) < 16 {
		return errors.New("COOKIE_SECRET must be at least 16 bytes")
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid GIN_MODE %q", c.GinMode)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.SyncMaxMessages <= 0 || c.SyncFetchConcurrency <= 0 || c.SyncWorkers <= 0 || c.SyncQueueSize <= 0 {
		return errors.New("sync limits must be positive")
	}
	switch c.BlobBackend {
	case BlobBolt:
		if c.BlobPath == "" {
			return errors.New("BLOB_PATH is required for the bolt backend")
		}
	case BlobR2:
		if c.R2Bucket == "" || c.R2AccessKeyID == "" || c.R2SecretAccessKey == "" {
			return errors.New("R2_BUCKET_NAME, R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY are required for the r2 backend")
		}
		if c.R2Endpoint == "" && c.CloudflareAccount == "" {
			return errors.New("CLOUDFLARE_ACCOUNT_ID or R2_ENDPOINT is required for the r2 backend")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	return nil
}

// R2EndpointURL returns the S3-compatible endpoint for the configured account.
func (c Config) R2EndpointURL() string {
	if c.R2Endpoint != "" {
		return c.R2Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.CloudflareAccount)
}
