// Package kvstore defines the key/value store the registry and session are persisted in.
package kvstore

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a requested key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// KVReader defines the read side of a store.
type KVReader interface {
	// Get returns the raw value stored under key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// KVWriter defines the write side of a store.
type KVWriter interface {
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Store is the full contract every backend implements.
type Store interface {
	KVReader
	KVWriter
}

// Pinger is implemented by backends that talk to a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks connectivity when the store supports it.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
