// Package storage persists checkpoint blobs on the local filesystem or in
// an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// ErrNotFound is returned by Get for keys that do not exist.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Location describes where key lives, for logging.
	Location(key string) string
}

type Config struct {
	Backend string   `mapstructure:"backend"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// New opens the backend named by cfg. localRoot is the directory used by
// the local backend.
func New(ctx context.Context, cfg Config, localRoot string) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendLocal:
		return NewLocalStore(localRoot)
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("invalid storage backend %s", cfg.Backend)
}
