// Package store provides the string key-value stores the cache is layered on.
// Values never expire on their own; expiry is the cache's job.
package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/formdepartment/capsule/internal/config"
)

// Store reads and writes string values by key.
// Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set creates or overwrites key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Backend is a Store that can list keys and must be closed.
type Backend interface {
	Store
	Lister
	io.Closer
}

// Open returns the backend selected by cfg.StoreBackend.
// The SQLite database lives in baseDir.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client), nil
	case config.BackendSQLite, "":
		db, err := Init(baseDir)
		if err != nil {
			return nil, err
		}
		ConfigurePool(db, cfg)
		return NewSQLite(db), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// DBPath returns the SQLite database path inside baseDir.
func DBPath(baseDir string) string {
	return filepath.Join(baseDir, "capsule.db")
}
