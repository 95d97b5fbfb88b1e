// Package config loads runtime settings from FORMS_* environment variables,
// optionally seeded from a .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"formcore/internal/blob"
	"formcore/internal/core"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "FORMS"

// Config is the process configuration.
//
//	FORMS_HTTP_ADDR                      listen address (default :8080)
//	FORMS_LOG_LEVEL                      debug|info|warn|error (default info)
//	FORMS_LOG_DEVELOPMENT                human-readable logs (default false)
//	FORMS_STORAGE_DRIVER                 memory|sqlite|postgres (default sqlite)
//	FORMS_SQLITE_PATH                    sqlite file (default formcore.db)
//	FORMS_POSTGRES_DSN                   postgres DSN
//	FORMS_SESSION_HASH_KEY               hex, 32 or 64 bytes (required for serve)
//	FORMS_SESSION_BLOCK_KEY              hex, 16/24/32 bytes, optional
//	FORMS_SESSION_TTL                    session lifetime (default 336h)
//	FORMS_SESSION_SECURE                 Secure cookie flag
//	FORMS_ALLOW_ANONYMOUS_SUBMISSIONS    accept submissions without login
//	FORMS_ARCHIVE_EXPORTS                keep a blob copy of CSV exports
//	FORMS_BLOB_DRIVER                    fs|s3|memory (default fs)
//	FORMS_BLOB_FS_ROOT                   fs root (default ./blobdata)
//	FORMS_BLOB_S3_*                      bucket, region, endpoint, keys, path style
type Config struct {
	HTTPAddr       string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"formcore.db"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`

	SessionHashKey  string        `envconfig:"SESSION_HASH_KEY"`
	SessionBlockKey string        `envconfig:"SESSION_BLOCK_KEY"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"336h"`
	SessionSecure   bool          `envconfig:"SESSION_SECURE"`

	AllowAnonymousSubmissions bool `envconfig:"ALLOW_ANONYMOUS_SUBMISSIONS"`
	ArchiveExports            bool `envconfig:"ARCHIVE_EXPORTS"`

	BlobDriver string `envconfig:"BLOB_DRIVER" default:"fs"`
	BlobFSRoot string `envconfig:"BLOB_FS_ROOT" default:"./blobdata"`
	S3         S3     `envconfig:"BLOB_S3"`
}

// S3 holds the archive bucket settings.
type S3 struct {
	Bucket          string `envconfig:"BUCKET"`
	Region          string `envconfig:"REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"ENDPOINT"`
	AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY"`
	SessionToken    string `envconfig:"SESSION_TOKEN"`
	PathStyle       bool   `envconfig:"PATH_STYLE"`
}

// Load reads envFiles (missing files are skipped) and then the environment.
// Variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Storage converts the settings for core.OpenPersistentStore.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Blob converts the settings for blob.Open.
func (c Config) Blob() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		FSRoot: c.BlobFSRoot,
		S3: blob.S3Config{
			Bucket:          c.S3.Bucket,
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			SessionToken:    c.S3.SessionToken,
			PathStyle:       c.S3.PathStyle,
		},
	}
}

// SessionKeys decodes the hex session keys. The hash key is mandatory.
func (c Config) SessionKeys() (hashKey, blockKey []byte, err error) {
	if strings.TrimSpace(c.SessionHashKey) == "" {
		return nil, nil, fmt.Errorf("%s_SESSION_HASH_KEY is required", Prefix)
	}
	hashKey, err = hex.DecodeString(strings.TrimSpace(c.SessionHashKey))
	if err != nil {
		return nil, nil, fmt.Errorf("decode session hash key: %w", err)
	}
	if len(hashKey) != 32 && len(hashKey) != 64 {
		return nil, nil, fmt.Errorf("session hash key must be 32 or 64 bytes, got %d", len(hashKey))
	}
	if c.SessionBlockKey == "" {
		return hashKey, nil, nil
	}
	blockKey, err = hex.DecodeString(strings.TrimSpace(c.SessionBlockKey))
	if err != nil {
		return nil, nil, fmt.Errorf("decode session block key: %w", err)
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return nil, nil, fmt.Errorf("session block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}
	return hashKey, blockKey, nil
}
