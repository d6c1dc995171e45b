package artifact

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// Mirror copies a results directory into a store under prefix/runID
type Mirror struct {
	store  Store
	fs     afero.Fs
	prefix string
	skip   []string // directory names not mirrored
}

// NewMirror returns a mirror reading from fs. Directories whose name is in
// skip are left out, typically the temp directory.
func NewMirror(store Store, fs afero.Fs, prefix string, skip ...string) *Mirror {
	return &Mirror{store: store, fs: fs, prefix: prefix, skip: skip}
}

// Upload mirrors every file below dir and returns the number of uploaded
// files. It stops at the first failure.
func (m *Mirror) Upload(ctx context.Context, runID, dir string) (int, error) {
	log := GetLogger().With(logger.String("run_id", runID), logger.String("driver", string(m.store.Driver())))

	uploaded := 0
	err := afero.Walk(m.fs, dir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if p != dir && slices.Contains(m.skip, info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(m.prefix, runID, filepath.ToSlash(rel))

		f, err := m.fs.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := m.store.Put(ctx, key, f, ContentType(p)); err != nil {
			return err
		}
		uploaded++
		log.Trace("artifact mirrored", logger.String("key", key))
		return nil
	})
	if err != nil {
		return uploaded, errors.New(err).
			Category(errors.CategoryStorage).
			Context("operation", "mirror_results").
			Context("dir", dir).
			Context("uploaded", uploaded).
			Build()
	}

	log.Info("results mirrored", logger.Int("files", uploaded), logger.String("dir", dir))
	return uploaded, nil
}
