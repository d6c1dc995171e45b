// Package roi holds candidate nucleus regions and the geometric rules that prune them.
//
// Region sets are immutable snapshots: every operation returns a new slice with
// regions renumbered from 1 and never modifies its input.
package roi

import (
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// Region is one candidate nucleus
type Region struct {
	Index   int // 1-based position in its set
	Polygon geometry.Polygon
	Bounds  geometry.Rect
}

// FromPolygons builds a region set from segmentation output
func FromPolygons(polys []geometry.Polygon) []Region {
	out := make([]Region, len(polys))
	for i, p := range polys {
		poly := p.Clone()
		out[i] = Region{Index: i + 1, Polygon: poly, Bounds: poly.Bounds()}
	}
	return out
}

// Select returns the regions for which keep is true, renumbered from 1
func Select(regions []Region, keep func(r Region) bool) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		if !keep(r) {
			continue
		}
		r.Index = len(out) + 1
		out = append(out, r)
	}
	return out
}

// Polygons returns the geometry of every region in order
func Polygons(regions []Region) []geometry.Polygon {
	out := make([]geometry.Polygon, len(regions))
	for i, r := range regions {
		out[i] = r.Polygon
	}
	return out
}

// Measurement is the per-region input of the geometric filter
type Measurement struct {
	Area        float64
	Circularity float64
}

// Measure computes area and circularity of each region in an image of the given size
func Measure(regions []Region, width, height int) []Measurement {
	out := make([]Measurement, len(regions))
	for i, r := range regions {
		s := geometry.Describe(r.Polygon, geometry.Rasterize(r.Polygon, width, height))
		out[i] = Measurement{Area: s.Area, Circularity: s.Circularity}
	}
	return out
}

// FilterParams are the rejection thresholds and the image bounds
type FilterParams struct {
	AreaMin        float64
	AreaMax        float64
	CircularityMax float64 // regions strictly more circular are rejected
	Width, Height  int
}

// Rejections counts the regions removed by each rule
type Rejections struct {
	Size   int
	Shape  int
	Border int
}

// Total returns the number of rejected regions
func (r Rejections) Total() int {
	return r.Size + r.Shape + r.Border
}

// Filter applies, in order, the size, shape and border rules. Survivors are
// renumbered from 1. measurements must be aligned with regions.
func Filter(regions []Region, measurements []Measurement, p FilterParams) ([]Region, Rejections, error) {
	var rej Rejections
	if len(regions) != len(measurements) {
		return nil, rej, errors.Newf("measurement count %d does not match region count %d", len(measurements), len(regions)).
			Category(errors.CategoryValidation).
			Context("operation", "filter_regions").
			Build()
	}

	out := make([]Region, 0, len(regions))
	for i, r := range regions {
		m := measurements[i]
		switch {
		case m.Area > p.AreaMax || m.Area < p.AreaMin:
			rej.Size++
		case m.Circularity > p.CircularityMax:
			rej.Shape++
		case r.Bounds.TouchesBorder(p.Width, p.Height):
			rej.Border++
		default:
			r.Index = len(out) + 1
			out = append(out, r)
		}
	}

	GetLogger().Debug("regions filtered",
		logger.Int("input", len(regions)),
		logger.Int("kept", len(out)),
		logger.Int("rejected_size", rej.Size),
		logger.Int("rejected_shape", rej.Shape),
		logger.Int("rejected_border", rej.Border))

	return out, rej, nil
}

// GetLogger returns the roi module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("roi")
}
