// Package artifact mirrors the results of a run to an object store.
package artifact

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// Driver names a store backend
type Driver string

const (
	DriverFilesystem Driver = "filesystem"
	DriverS3         Driver = "s3"
)

// Store receives mirrored files. Keys use forward slashes.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}

// FsStore writes objects below a root directory of an afero filesystem
type FsStore struct {
	fs   afero.Fs
	root string
}

// NewFsStore returns a filesystem store rooted at root
func NewFsStore(fs afero.Fs, root string) (*FsStore, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryStorage).
			Context("operation", "create_store_root").
			Context("root", root).
			Build()
	}
	return &FsStore{fs: fs, root: root}, nil
}

func (s *FsStore) Driver() Driver { return DriverFilesystem }

// Put copies r to root/key, replacing an existing object
func (s *FsStore) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.New(err).Category(errors.CategoryStorage).Context("key", key).Build()
	}
	f, err := s.fs.Create(dst)
	if err != nil {
		return errors.New(err).Category(errors.CategoryStorage).Context("key", key).Build()
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.New(err).Category(errors.CategoryStorage).Context("key", key).Build()
	}
	return f.Close()
}

// sanitizeKey forbids absolute keys and keys escaping the store root
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.Newf("empty object key").Category(errors.CategoryValidation).Build()
	}
	clean := path.Clean(filepath.ToSlash(key))
	if strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Newf("invalid object key %q", key).Category(errors.CategoryValidation).Build()
	}
	return clean, nil
}

// ContentType guesses the content type of a result file from its extension
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// GetLogger returns the artifact module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("artifact")
}
