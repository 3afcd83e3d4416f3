package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps files under a local directory. Meant for development and
// single-node deployments.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("could not create upload directory: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Save writes body to a temporary file first so readers never see a partial
// upload.
func (d *DiskStore) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dst)
}

// Delete treats a missing file as already deleted.
func (d *DiskStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(d.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
