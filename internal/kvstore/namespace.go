package kvstore

import (
	"context"
	"errors"
	"fmt"
)

// Namespaced prefixes every key so several deployments can share one backend.
type Namespaced struct {
	inner  Store
	prefix string
}

// WithNamespace wraps s. An empty namespace returns s unchanged.
func WithNamespace(s Store, namespace string) Store {
	if namespace == "" {
		return s
	}
	return &Namespaced{inner: s, prefix: namespace + ":"}
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *Namespaced) Ping(ctx context.Context) error {
	return Ping(ctx, n.inner)
}

// Migrate copies keys from src to dst. Keys absent in src are deleted in dst,
// so the destination ends up mirroring the source for those keys.
func Migrate(ctx context.Context, src, dst Store, keys ...string) (int, error) {
	copied := 0
	for _, key := range keys {
		val, err := src.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			if err := dst.Delete(ctx, key); err != nil {
				return copied, fmt.Errorf("failed to clear key %s in destination: %w", key, err)
			}
			continue
		}
		if err != nil {
			return copied, fmt.Errorf("failed to read key %s: %w", key, err)
		}
		if err := dst.Set(ctx, key, val); err != nil {
			return copied, fmt.Errorf("failed to set key %s in destination: %w", key, err)
		}
		copied++
	}
	return copied, nil
}
