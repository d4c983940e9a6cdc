// Package store holds pack archives in a remote object store.
//
// S3Store targets S3-compatible services (Cloudflare R2 in production);
// DirStore keeps objects in a local directory for development and tests.
// Failures are returned as *StorageError, classified by sentinel.
package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// Store is the object store holding one archive per token.
type Store interface {
	// Put writes size bytes from r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Fetch downloads key to dstPath and returns the bytes written.
	Fetch(ctx context.Context, key, dstPath string) (int64, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Stat returns the size of key, or ErrNotFound.
	Stat(ctx context.Context, key string) (int64, error)
}

// PutFile uploads the file at path under key and returns its size.
func PutFile(ctx context.Context, s Store, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, wrap("put", key, err)
	}
	defer iox.DiscardClose(f)

	fi, err := f.Stat()
	if err != nil {
		return 0, wrap("put", key, err)
	}
	if err := s.Put(ctx, key, f, fi.Size()); err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// writeTo streams r into dstPath through a temp file and returns the size.
func writeTo(dstPath string, r io.Reader) (int64, error) {
	dir, base := splitPath(dstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+base+".part-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		iox.DiscardClose(tmp)
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		return n, fmt.Errorf("rename: %w", err)
	}
	return n, nil
}
