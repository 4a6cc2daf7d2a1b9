package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ErrInvalidValue is returned by FileStore when a value is not a JSON document.
var ErrInvalidValue = errors.New("value is not valid json")

// FileStore keeps every slot in a single JSON document on disk.
// Each write replaces the file through a temp file and rename, so a crash
// leaves either the old document or the new one.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// OpenFileStore loads path, creating its directory when missing. A missing
// file starts empty; an unreadable document is logged and discarded.
func OpenFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	fs := &FileStore{path: path, data: make(map[string]json.RawMessage)}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	}

	if err := json.Unmarshal(content, &fs.data); err != nil {
		logger.Warn("discarding unreadable store file", zap.String("path", path), zap.Error(err))
		fs.data = make(map[string]json.RawMessage)
		return fs, nil
	}
	// The document is indented on disk; hand values back compact.
	for key, val := range fs.data {
		var buf bytes.Buffer
		if err := json.Compact(&buf, val); err == nil {
			fs.data[key] = buf.Bytes()
		}
	}
	return fs, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	val, ok := f.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), val...), nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return ErrInvalidValue
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	f.data[key] = append(json.RawMessage(nil), value...)
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

// flush must be called with f.mu held.
func (f *FileStore) flush() error {
	doc, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, doc, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
