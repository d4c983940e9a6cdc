package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// DirStore keeps objects as files under Root.
type DirStore struct {
	Root string
}

// NewDirStore creates a DirStore rooted at root, creating it if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, errors.New("dir store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrap("init", root, err)
	}
	return &DirStore{Root: root}, nil
}

func (d *DirStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.Root, key), nil
}

// Put implements Store.
func (d *DirStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return wrap("put", key, err)
	}
	path, err := d.path(key)
	if err != nil {
		return wrap("put", key, err)
	}
	n, err := writeTo(path, r)
	if err != nil {
		return wrap("put", key, err)
	}
	if size >= 0 && n != size {
		_ = os.Remove(path)
		return wrap("put", key, fmt.Errorf("short write: %d of %d bytes", n, size))
	}
	return nil
}

// Fetch implements Store.
func (d *DirStore) Fetch(ctx context.Context, key, dstPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrap("fetch", key, err)
	}
	path, err := d.path(key)
	if err != nil {
		return 0, wrap("fetch", key, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, wrap("fetch", key, err)
	}
	defer iox.DiscardClose(f)

	n, err := writeTo(dstPath, f)
	return n, wrap("fetch", key, err)
}

// Delete implements Store.
func (d *DirStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return wrap("delete", key, err)
	}
	path, err := d.path(key)
	if err != nil {
		return wrap("delete", key, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrap("delete", key, err)
	}
	return nil
}

// Stat implements Store.
func (d *DirStore) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrap("stat", key, err)
	}
	path, err := d.path(key)
	if err != nil {
		return 0, wrap("stat", key, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, wrap("stat", key, err)
	}
	return fi.Size(), nil
}

func splitPath(p string) (dir, base string) {
	return filepath.Dir(p), filepath.Base(p)
}
