package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/sushihentaime/teamblog/internal/common"
)

// FileStore keeps attachment bodies. Keys are slash separated and relative.
type FileStore interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

var ErrInvalidKey = errors.New("invalid storage key")

// NewKey returns a fresh key under prefix that keeps the extension of
// filename, e.g. "attachments/5f0c...e1.png".
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(prefix, common.NewID()+ext)
}

// cleanKey rejects absolute keys and keys that climb out of the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}

	return cleaned, nil
}
