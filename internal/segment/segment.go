// Package segment turns a preprocessed nuclear plane into candidate nucleus outlines.
package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/runner"
)

// Segmenter detects nuclei in a preprocessed plane
type Segmenter interface {
	Segment(ctx context.Context, p *imaging.Plane) ([]geometry.Polygon, error)
}

// SegmenterFunc adapts a function to the Segmenter interface
type SegmenterFunc func(ctx context.Context, p *imaging.Plane) ([]geometry.Polygon, error)

// Segment calls f(ctx, p)
func (f SegmenterFunc) Segment(ctx context.Context, p *imaging.Plane) ([]geometry.Polygon, error) {
	return f(ctx, p)
}

// StarDist runs the StarDist wrapper script on a TIFF copy of the plane.
// The script prints a JSON array of polygons, each a list of [x, y] vertices.
type StarDist struct {
	Python      string
	Script      string
	Probability float64
	Overlap     float64
	WorkDir     string // where the input TIFF is written
	Timeout     time.Duration
}

// Segment writes the plane as a 16-bit TIFF, invokes the script and parses its output
func (s *StarDist) Segment(ctx context.Context, p *imaging.Plane) ([]geometry.Polygon, error) {
	input := filepath.Join(s.WorkDir, "segment_"+uuid.NewString()+".tif")
	if err := writePlane(input, p); err != nil {
		return nil, err
	}
	defer os.Remove(input)

	res, err := runner.Run(ctx, runner.Command{
		Name: "stardist",
		Path: s.Python,
		Args: []string{
			s.Script,
			input,
			strconv.FormatFloat(s.Probability, 'f', -1, 64),
			strconv.FormatFloat(s.Overlap, 'f', -1, 64),
		},
		Timeout: s.Timeout,
	})
	if err != nil {
		return nil, errors.New(err).
			Category(categoryOf(err)).
			Context("operation", "stardist_segment").
			Build()
	}

	polys, err := ParsePolygons(res.Stdout)
	if err != nil {
		return nil, err
	}

	GetLogger().Debug("stardist segmentation finished",
		logger.Int("regions", len(polys)),
		logger.Duration("duration", res.Duration))

	return polys, nil
}

// ParsePolygons decodes the segmenter output format. Polygons with fewer than
// three vertices are dropped.
func ParsePolygons(data []byte) ([]geometry.Polygon, error) {
	var raw [][][2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.New(fmt.Errorf("decode segmenter output: %w", err)).
			Category(errors.CategorySegmentation).
			Context("operation", "parse_polygons").
			Build()
	}

	out := make([]geometry.Polygon, 0, len(raw))
	for _, verts := range raw {
		if len(verts) < 3 {
			continue
		}
		poly := make(geometry.Polygon, len(verts))
		for i, v := range verts {
			poly[i] = geometry.Point{X: v[0], Y: v[1]}
		}
		out = append(out, poly)
	}
	return out, nil
}

func writePlane(path string, p *imaging.Plane) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_segment_input").
			Context("path", path).
			Build()
	}
	if err := imaging.EncodeTIFF(f, p); err != nil {
		f.Close()
		return errors.New(err).
			Category(errors.CategoryImageProcessing).
			Context("operation", "encode_segment_input").
			Build()
	}
	return f.Close()
}

// categoryOf keeps timeouts and cancellations distinguishable from tool failures
func categoryOf(err error) errors.ErrorCategory {
	switch {
	case errors.IsCategory(err, errors.CategoryTimeout):
		return errors.CategoryTimeout
	case errors.IsCategory(err, errors.CategoryCancellation):
		return errors.CategoryCancellation
	default:
		return errors.CategorySegmentation
	}
}

// GetLogger returns the segmentation module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("segment")
}
