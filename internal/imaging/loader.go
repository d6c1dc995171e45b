package imaging

import (
	"context"
	"image"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// Preprocessor transforms a nuclear plane before segmentation. Implementations
// must return a new plane and leave the input untouched.
type Preprocessor interface {
	Preprocess(ctx context.Context, p *Plane) (*Plane, error)
}

// PreprocessFunc adapts a function to the Preprocessor interface
type PreprocessFunc func(ctx context.Context, p *Plane) (*Plane, error)

// Preprocess calls f(ctx, p)
func (f PreprocessFunc) Preprocess(ctx context.Context, p *Plane) (*Plane, error) {
	return f(ctx, p)
}

// Loader decodes planes from a filesystem, keeping recently used planes in memory.
// Returned planes are shared between callers and must be cloned before mutation.
type Loader struct {
	fs    afero.Fs
	cache *cache.Cache // nil when caching is disabled
}

// NewLoader returns a loader over fs. A zero ttl disables caching. Expired
// planes are evicted every ttl by the cache janitor.
func NewLoader(fs afero.Fs, ttl time.Duration) *Loader {
	l := &Loader{fs: fs}
	if ttl > 0 {
		l.cache = cache.New(ttl, ttl)
	}
	return l
}

// Load decodes the image at path into a plane.
func (l *Loader) Load(path string) (*Plane, error) {
	if l.cache != nil {
		if v, ok := l.cache.Get(path); ok {
			if p, ok := v.(*Plane); ok {
				GetLogger().Trace("plane cache hit", logger.String("path", path))
				return p, nil
			}
		}
	}

	f, err := l.fs.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "open_plane").
			Context("path", path).
			Build()
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryImageProcessing).
			Context("operation", "decode_plane").
			Context("path", path).
			Build()
	}

	p := FromImage(img)
	GetLogger().Debug("plane decoded",
		logger.String("path", path),
		logger.String("format", format),
		logger.Int("width", p.Width),
		logger.Int("height", p.Height))

	if l.cache != nil {
		l.cache.SetDefault(path, p)
	}

	return p, nil
}

// Forget drops the planes of paths, typically once an entry is done
func (l *Loader) Forget(paths ...string) {
	if l.cache == nil {
		return
	}
	for _, p := range paths {
		l.cache.Delete(p)
	}
}

// Cached returns the number of planes held in memory, expired ones included
// until the janitor runs.
func (l *Loader) Cached() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.ItemCount()
}

// Flush drops every cached plane
func (l *Loader) Flush() {
	if l.cache != nil {
		l.cache.Flush()
	}
}

// GetLogger returns the imaging module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("imaging")
}
