package well

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// Channel tokens as written by the microscope export
const (
	ChannelReporter = "YFP"
	ChannelNuclear  = "TexasRed"
)

var filePattern = regexp.MustCompile(`([A-Z]) - (\d+)\(fld (\d+) wv (\w+) - \w+\)`)

// Indexer scans a data root into wells
type Indexer struct {
	fs  afero.Fs
	log logger.Logger
}

// NewIndexer returns an indexer reading through fs
func NewIndexer(fs afero.Fs) *Indexer {
	return &Indexer{fs: fs, log: GetLogger()}
}

// Index enumerates the immediate subdirectories of root as wells and pairs the
// channel images inside each one. Only an unreadable root is an error; wells
// that lose entries or cannot be read are marked Partial.
func (ix *Indexer) Index(root string) ([]*Well, error) {
	infos, err := afero.ReadDir(ix.fs, root)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryIndexing).
			Context("operation", "read_data_root").
			Context("path", root).
			Build()
	}

	var wells []*Well
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		w := New(info.Name(), filepath.Join(root, info.Name()))
		ix.indexWell(w)
		wells = append(wells, w)
	}

	ix.log.Info("data root indexed",
		logger.String("path", root),
		logger.Int("wells", len(wells)))

	return wells, nil
}

func (ix *Indexer) indexWell(w *Well) {
	infos, err := afero.ReadDir(ix.fs, w.Path)
	if err != nil {
		w.Partial = true
		ix.log.Warn("well directory unreadable",
			logger.String("well", w.Name),
			logger.Error(err))
		return
	}

	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ix.addFile(w, info.Name())
	}

	w.finalize()

	if w.Partial {
		ix.log.Warn("well has incomplete entries",
			logger.String("well", w.Name),
			logger.Any("dropped", w.DroppedKeys))
	}
	ix.log.Debug("well indexed",
		logger.String("well", w.Name),
		logger.Int("entries", w.Len()))
}

func (ix *Indexer) addFile(w *Well, name string) {
	fn, ok := ParseFileName(name)
	if !ok {
		return
	}

	var setter func(e *Entry, path string)
	switch {
	case strings.EqualFold(fn.Channel, ChannelReporter):
		setter = func(e *Entry, path string) { e.ReporterPath = path }
	case strings.EqualFold(fn.Channel, ChannelNuclear):
		setter = func(e *Entry, path string) { e.NuclearPath = path }
	default:
		ix.log.Debug("skipping unknown channel",
			logger.String("file", name),
			logger.String("channel", fn.Channel))
		return
	}

	e := w.getOrAdd(fn.Key, func() *Entry {
		return &Entry{Key: fn.Key, Letter: fn.Letter, Number: fn.Number, FoV: fn.FoV}
	})
	setter(e, filepath.Join(w.Path, name))
}

// FileName is the parsed form of an exported image file name
type FileName struct {
	Key     string // Letter_Number_FOV as written in the name
	Letter  string
	Number  int
	FoV     int
	Channel string
}

// ParseFileName matches "<L> - <N>(fld <F> wv <Channel> - <anything>)"
// anywhere in name.
func ParseFileName(name string) (FileName, bool) {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return FileName{}, false
	}
	number, err := strconv.Atoi(m[2])
	if err != nil {
		return FileName{}, false
	}
	fov, err := strconv.Atoi(m[3])
	if err != nil {
		return FileName{}, false
	}
	return FileName{
		Key:     m[1] + "_" + m[2] + "_" + m[3],
		Letter:  m[1],
		Number:  number,
		FoV:     fov,
		Channel: m[4],
	}, true
}

// GetLogger returns the indexer module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("indexer")
}
