package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// fileExt is the extension of every blob file.
const fileExt = ".model"

// fileStore implements Store with one compressed file per key
type fileStore struct {
	dir        string
	compressor *Compressor
	mu         sync.RWMutex
}

func openFileStore(cfg Config, compressor *Compressor) (*fileStore, error) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", cfg.Path, err)
	}

	return &fileStore{
		dir:        cfg.Path,
		compressor: compressor,
	}, nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// Put implements Store.Put. The blob is written to a temporary file first and
// renamed into place, so readers never see a partial blob.
func (s *fileStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(s.compressor.Compress(blob)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}

	return nil
}

// Get implements Store.Get
func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}

		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return s.compressor.Decompress(data)
}

// Delete implements Store.Delete
func (s *fileStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}

// Keys implements Store.Keys
func (s *fileStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	keys := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}

		key := strings.TrimSuffix(name, fileExt)
		if validateKey(key) != nil {
			continue
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

// Close implements Store.Close
func (s *fileStore) Close() error {
	s.compressor.Close()
	return nil
}
