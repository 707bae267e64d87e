package kv

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

var _ Store = (*FileStore)(nil)
var _ Store = (*SQLiteStore)(nil)
var _ Store = (*TestStore)(nil)

// Store is a durable local key-value storage for text-serialized collections.
// Set fully overwrites the previous value under the key and is idempotent;
// Get returns ErrKeyNotFound for absent keys, callers substitute defaults.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
