package classify

import (
	"context"
	"math"

	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/roi"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Class is the localization of the reporter relative to the nucleus
type Class int

const (
	Intermediate Class = iota
	Enriched
	Depleted
)

// String returns the class name used in provenance files
func (c Class) String() string {
	switch c {
	case Enriched:
		return "enriched"
	case Depleted:
		return "depleted"
	default:
		return "intermediate"
	}
}

// Point is the localization decision for one region
type Point struct {
	Index    int
	In       float64 // reporter mean inside the region
	Out      float64 // reporter mean over the band
	Gap      float64 // Out - In
	Distance float64 // |In - Out| / sqrt(2)
	Class    Class
}

// Localize applies the margin rule. A distance within the margin, including
// one equal to it, is Intermediate; beyond it the sign of the gap decides.
// NaN intensities yield Intermediate.
func Localize(in, out, margin float64) Point {
	p := Point{In: in, Out: out, Gap: out - in, Distance: math.Abs(in-out) / math.Sqrt2}
	switch {
	case !(p.Distance > margin):
		p.Class = Intermediate
	case p.Gap > 0:
		p.Class = Depleted
	default:
		// gap == 0 implies distance == 0, so the gap is negative here
		p.Class = Enriched
	}
	return p
}

// Counts tallies the localization classes
type Counts struct {
	Enriched     int
	Depleted     int
	Intermediate int
}

// Total returns the number of classified regions
func (c Counts) Total() int {
	return c.Enriched + c.Depleted + c.Intermediate
}

func (c *Counts) add(class Class) {
	switch class {
	case Enriched:
		c.Enriched++
	case Depleted:
		c.Depleted++
	default:
		c.Intermediate++
	}
}

// Ratios divides each count by n, the post stage gate region count
func (c Counts) Ratios(n int) (enriched, depleted, intermediate float64) {
	if n == 0 {
		return 0, 0, 0
	}
	d := float64(n)
	return float64(c.Enriched) / d, float64(c.Depleted) / d, float64(c.Intermediate) / d
}

// Result is the outcome of the cascade for one entry
type Result struct {
	Status  well.Status  // StatusNormal, StatusEmpty or StatusNoTargetStageRegions
	Regions []roi.Region // final regions, renumbered from 1
	Points  []Point      // aligned with Regions
	Counts  Counts
	Err     error // classifier failure behind a StatusEmpty result
}

// Cascade gates regions with a stage classifier and localizes the survivors
type Cascade struct {
	Classifier StageClassifier
	Margin     float64
}

// Run classifies the regions described by table. Rows must be aligned with regions.
func (c Cascade) Run(ctx context.Context, regions []roi.Region, table features.Table) Result {
	log := GetLogger()

	labels, err := c.Classifier.Classify(ctx, table)
	if err != nil {
		log.Warn("stage classifier failed", logger.Error(err))
		return Result{Status: well.StatusEmpty, Err: err}
	}
	if len(labels) != len(regions) || table.Len() != len(regions) {
		log.Warn("stage classifier label count mismatch",
			logger.Int("labels", len(labels)),
			logger.Int("regions", len(regions)))
		return Result{Status: well.StatusEmpty}
	}

	var keptRows []features.Row
	pos := 0
	final := roi.Select(regions, func(roi.Region) bool {
		i := pos
		pos++
		if labels[i] == 0 {
			return false
		}
		keptRows = append(keptRows, table.Rows[i])
		return true
	})
	if len(final) == 0 {
		log.Debug("no region in target stage", logger.Int("regions", len(regions)))
		return Result{Status: well.StatusNoTargetStageRegions}
	}

	res := Result{Status: well.StatusNormal, Regions: final, Points: make([]Point, len(final))}
	for i, row := range keptRows {
		p := Localize(row.Reporter.Mean, row.Exterior.Reporter.Mean, c.Margin)
		p.Index = final[i].Index
		res.Points[i] = p
		res.Counts.add(p.Class)
	}

	log.Debug("regions localized",
		logger.Int("target_stage", len(final)),
		logger.Int("enriched", res.Counts.Enriched),
		logger.Int("depleted", res.Counts.Depleted),
		logger.Int("intermediate", res.Counts.Intermediate))

	return res
}
