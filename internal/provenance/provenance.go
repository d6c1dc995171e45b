// Package provenance persists the intermediate artifacts of an entry analysis:
// region sets at each pruning stage, the feature table handed to the stage
// classifier and the localization decisions.
package provenance

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/classify"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/roi"
)

// Region set stages
const (
	StageSegmented = "stardist"
	StageFiltered  = "prefiltering"
	StageFinal     = "final"
)

// Writer stores artifacts below a temp and a results directory
type Writer struct {
	fs         afero.Fs
	tempDir    string
	resultsDir string
}

// NewWriter returns a writer over fs
func NewWriter(fs afero.Fs, tempDir, resultsDir string) *Writer {
	return &Writer{fs: fs, tempDir: tempDir, resultsDir: resultsDir}
}

// RegionFile is the serialized form of a region set
type RegionFile struct {
	Entry   string         `json:"entry"`
	Stage   string         `json:"stage"`
	Regions []RegionRecord `json:"regions"`
}

// RegionRecord is one serialized region
type RegionRecord struct {
	Index   int           `json:"index"`
	Bounds  geometry.Rect `json:"bounds"`
	Polygon [][2]float64  `json:"polygon"`
}

// RegionSetPath returns where the region set of a stage is written. Final sets
// go to the results directory, intermediate ones to the temp directory.
func (w *Writer) RegionSetPath(stage, key string) string {
	dir := w.tempDir
	if stage == StageFinal {
		dir = w.resultsDir
	}
	return filepath.Join(dir, fmt.Sprintf("RoiSet_%s_%s.json", stage, key))
}

// FeatureTablePath returns the feature CSV path of an entry
func (w *Writer) FeatureTablePath(key string) string {
	return filepath.Join(w.tempDir, "data_"+key+".csv")
}

// LocalizationPath returns the localization CSV path of an entry
func (w *Writer) LocalizationPath(key string) string {
	return filepath.Join(w.resultsDir, "localization_"+key+".csv")
}

// RegionSet writes the regions of an entry at a pruning stage
func (w *Writer) RegionSet(stage, key string, regions []roi.Region) (string, error) {
	rf := RegionFile{Entry: key, Stage: stage, Regions: make([]RegionRecord, len(regions))}
	for i, r := range regions {
		verts := make([][2]float64, len(r.Polygon))
		for j, p := range r.Polygon {
			verts[j] = [2]float64{p.X, p.Y}
		}
		rf.Regions[i] = RegionRecord{Index: r.Index, Bounds: r.Bounds, Polygon: verts}
	}

	path := w.RegionSetPath(stage, key)
	return path, w.write(path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rf)
	})
}

// ReadRegionSet loads a region set written by RegionSet
func (w *Writer) ReadRegionSet(path string) ([]roi.Region, error) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "read_region_set").
			Context("path", path).
			Build()
	}
	var rf RegionFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	regions := make([]roi.Region, len(rf.Regions))
	for i, rec := range rf.Regions {
		poly := make(geometry.Polygon, len(rec.Polygon))
		for j, v := range rec.Polygon {
			poly[j] = geometry.Point{X: v[0], Y: v[1]}
		}
		regions[i] = roi.Region{Index: rec.Index, Polygon: poly, Bounds: rec.Bounds}
	}
	return regions, nil
}

// FeatureTable writes the feature CSV consumed by the stage classifier
func (w *Writer) FeatureTable(key string, table features.Table) (string, error) {
	path := w.FeatureTablePath(key)
	return path, w.write(path, table.WriteCSV)
}

// Localization writes one row per classified region
func (w *Writer) Localization(key string, points []classify.Point) (string, error) {
	path := w.LocalizationPath(key)
	return path, w.write(path, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write([]string{"idx", "reporter_mean_in", "reporter_mean_out", "gap", "distance", "class"}); err != nil {
			return err
		}
		for _, p := range points {
			record := []string{
				strconv.Itoa(p.Index),
				formatFloat(p.In),
				formatFloat(p.Out),
				formatFloat(p.Gap),
				formatFloat(p.Distance),
				p.Class.String(),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func (w *Writer) write(path string, fn func(io.Writer) error) error {
	if err := w.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create_provenance_dir").
			Context("path", path).
			Build()
	}
	f, err := w.fs.Create(path)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create_provenance_file").
			Context("path", path).
			Build()
	}
	if err := fn(f); err != nil {
		f.Close()
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_provenance_file").
			Context("path", path).
			Build()
	}
	if err := f.Close(); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("path", path).Build()
	}

	GetLogger().Trace("provenance written", logger.String("path", path))
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// GetLogger returns the provenance module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("provenance")
}
