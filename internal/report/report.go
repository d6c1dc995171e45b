// Package report writes the per-entry result table of a run, its per-well
// summary and hands the table to the external plot script.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Header is the first line of output.csv
const Header = "Well Name,FoV,Enriched to Nuclei Ratio,Total Enriched,Depleted to Nuclei Ratio,Total Depleted," +
	"Intermediate to Nuclei Ratio,Total Intermediate,Total Nuclei,Total Nuclei Metaphase,Comment"

// Aggregator writes the report of a run
type Aggregator struct {
	fs afero.Fs
}

// NewAggregator returns an aggregator writing to fs
func NewAggregator(fs afero.Fs) *Aggregator {
	return &Aggregator{fs: fs}
}

// WriteRows writes the header and one row per processed entry, wells in label
// order and entries in insertion order. It returns the number of rows written.
// Ratios use six decimals.
func WriteRows(w io.Writer, wells []*well.Well) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return 0, fmt.Errorf("failed to write report header: %w", err)
	}

	rows := 0
	for _, wl := range well.Ordered(wells) {
		for _, e := range wl.Entries() {
			if !e.Processed() {
				continue
			}
			record := []string{
				wl.Name, strconv.Itoa(e.FoV),
				ratio(e.EnrichedRatio), strconv.Itoa(e.TotalEnriched),
				ratio(e.DepletedRatio), strconv.Itoa(e.TotalDepleted),
				ratio(e.IntermediateRatio), strconv.Itoa(e.TotalIntermediate),
				strconv.Itoa(e.TotalNuclei), strconv.Itoa(e.TotalTargetStage),
				e.Status.Comment(),
			}
			if err := cw.Write(record); err != nil {
				return rows, fmt.Errorf("failed to write report row: %w", err)
			}
			rows++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("failed to write report: %w", err)
	}
	return rows, nil
}

// ratio formats like %f
func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Write replaces the report at path. The rows go to a temporary file in the
// same directory which is then renamed over path, so a failed write leaves
// any previous report intact.
func (a *Aggregator) Write(path string, wells []*well.Well) error {
	rows := 0
	err := writeAtomic(a.fs, path, func(w io.Writer) error {
		var err error
		rows, err = WriteRows(w, wells)
		return err
	})
	if err != nil {
		return err
	}

	GetLogger().Info("report written",
		logger.String("path", path),
		logger.Int("rows", rows),
		logger.Int("wells", len(wells)))
	return nil
}

func writeAtomic(fs afero.Fs, path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryReport).
			Context("operation", "create_report_dir").
			Context("path", dir).
			Build()
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryReport).
			Context("operation", "create_temp_report").
			Context("path", path).
			Build()
	}
	tmpName := tmp.Name()

	if err := fn(tmp); err != nil {
		tmp.Close()
		_ = fs.Remove(tmpName)
		return errors.New(err).
			Category(errors.CategoryReport).
			Context("operation", "write_report").
			Context("path", path).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return errors.New(err).Category(errors.CategoryReport).Context("path", path).Build()
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return errors.New(err).
			Category(errors.CategoryReport).
			Context("operation", "rename_report").
			Context("path", path).
			Build()
	}
	return nil
}

// WriteEntryTable writes a tab separated description of one entry, for
// printing single pair results. A nil w writes to stdout.
func WriteEntryTable(w io.Writer, e *well.Entry) error {
	if w == nil {
		w = os.Stdout
	}
	rows := [][2]string{
		{"Entry", e.Key},
		{"Status", e.Status.String()},
		{"Total Nuclei", fmt.Sprint(e.TotalNuclei)},
		{"Total Nuclei Metaphase", fmt.Sprint(e.TotalTargetStage)},
		{"Total Enriched", fmt.Sprint(e.TotalEnriched)},
		{"Total Depleted", fmt.Sprint(e.TotalDepleted)},
		{"Total Intermediate", fmt.Sprint(e.TotalIntermediate)},
		{"Enriched to Nuclei Ratio", fmt.Sprintf("%f", e.EnrichedRatio)},
		{"Depleted to Nuclei Ratio", fmt.Sprintf("%f", e.DepletedRatio)},
		{"Intermediate to Nuclei Ratio", fmt.Sprintf("%f", e.IntermediateRatio)},
		{"Comment", e.Status.Comment()},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", r[0], r[1]); err != nil {
			return fmt.Errorf("failed to write entry table: %w", err)
		}
	}
	return nil
}

// GetLogger returns the report module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("report")
}
