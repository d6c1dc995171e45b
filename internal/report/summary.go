package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// SummaryHeader is the first line of summary.csv
const SummaryHeader = "Well Name,Total Enriched,Total Depleted,Total Intermediate,Total Nuclei,Total Nuclei Metaphase," +
	"Fraction Enriched,Fraction Depleted,Fraction Intermediate"

// WellSummary holds the totals of the Normal entries of one well
type WellSummary struct {
	Name              string
	TotalEnriched     int
	TotalDepleted     int
	TotalIntermediate int
	TotalNuclei       int
	TotalTargetStage  int
}

// Fractions divides the class totals by the nucleus total, 0 when there is none
func (s WellSummary) Fractions() (enriched, depleted, intermediate float64) {
	if s.TotalNuclei == 0 {
		return 0, 0, 0
	}
	n := float64(s.TotalNuclei)
	return float64(s.TotalEnriched) / n, float64(s.TotalDepleted) / n, float64(s.TotalIntermediate) / n
}

// Summarize reduces the Normal entries to one summary per well name, in
// report order. Wells without a Normal entry are left out.
func Summarize(wells []*well.Well) []WellSummary {
	var out []WellSummary
	index := make(map[string]int)
	for _, wl := range well.Ordered(wells) {
		for _, e := range wl.Entries() {
			if e.Status != well.StatusNormal {
				continue
			}
			i, ok := index[wl.Name]
			if !ok {
				i = len(out)
				index[wl.Name] = i
				out = append(out, WellSummary{Name: wl.Name})
			}
			s := &out[i]
			s.TotalEnriched += e.TotalEnriched
			s.TotalDepleted += e.TotalDepleted
			s.TotalIntermediate += e.TotalIntermediate
			s.TotalNuclei += e.TotalNuclei
			s.TotalTargetStage += e.TotalTargetStage
		}
	}
	return out
}

// WriteSummary writes the summaries as CSV
func WriteSummary(w io.Writer, summaries []WellSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(SummaryHeader, ",")); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	for _, s := range summaries {
		fe, fd, fi := s.Fractions()
		record := []string{
			s.Name,
			strconv.Itoa(s.TotalEnriched), strconv.Itoa(s.TotalDepleted), strconv.Itoa(s.TotalIntermediate),
			strconv.Itoa(s.TotalNuclei), strconv.Itoa(s.TotalTargetStage),
			ratio(fe), ratio(fd), ratio(fi),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// WriteSummary summarizes wells into path. It returns the summaries; an empty
// result means the run has no usable well.
func (a *Aggregator) WriteSummary(path string, wells []*well.Well) ([]WellSummary, error) {
	summaries := Summarize(wells)
	if err := writeAtomic(a.fs, path, func(w io.Writer) error {
		return WriteSummary(w, summaries)
	}); err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		GetLogger().Warn("no usable wells in run", logger.String("path", path))
	}
	return summaries, nil
}
