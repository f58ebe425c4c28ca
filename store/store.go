// Package store persists opaque model blobs under short location keys.
//
// Two backends are available: a directory holding one compressed file per
// key, and an embedded BadgerDB database. Both compress blobs with zstd.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

var (
	// ErrNotFound is returned by OpenExisting when the storage location does
	// not exist.
	ErrNotFound = errors.New("storage location not found")

	// ErrKeyNotFound is returned by Get for a missing key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys outside [A-Za-z0-9._-].
	ErrInvalidKey = errors.New("invalid key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store defines the contract for blob persistence
type Store interface {
	// Put writes blob under key, replacing any previous value
	Put(ctx context.Context, key string, blob []byte) error

	// Get reads the blob stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key in sorted order
	Keys(ctx context.Context) ([]string, error)

	// Close releases the store
	Close() error
}

// Config holds storage configuration
type Config struct {
	Backend          string
	Path             string
	CompressionLevel int
	SyncWrites       bool
	Logger           *slog.Logger
}

// DefaultConfig returns default storage configuration
func DefaultConfig(path string) Config {
	return Config{
		Backend:          BackendFile,
		Path:             path,
		CompressionLevel: 2,
		SyncWrites:       true,
	}
}

// Open opens the store described by cfg, creating its location if needed.
func Open(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage path is required")
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	var s Store

	switch cfg.Backend {
	case BackendFile, "":
		s, err = openFileStore(cfg, compressor)
	case BackendBadger:
		s, err = openBadgerStore(cfg, compressor)
	default:
		err = fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	if err != nil {
		compressor.Close()

		return nil, err
	}

	return s, nil
}

// OpenExisting opens the store like Open but fails with ErrNotFound when its
// location does not exist yet.
func OpenExisting(cfg Config) (Store, error) {
	info, err := os.Stat(cfg.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cfg.Path)
		}

		return nil, fmt.Errorf("stat storage location %s: %w", cfg.Path, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("storage location %s is not a directory", cfg.Path)
	}

	return Open(cfg)
}

// validateKey checks that key is safe to use as a file name.
func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}
