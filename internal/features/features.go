// Package features measures shape and intensity descriptors of nucleus regions
// and writes them as the feature table consumed by the stage classifier.
package features

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/roi"
)

// Columns is the feature table layout, one line per name
var Columns = []string{
	"idx", "label", "majors", "minors", "area", "perimeter", "circularity",
	"AR", "roundness", "solidity", "nucl_std_in", "nucl_std_out", "nucl_mean_in", "nucl_mean_out",
}

// Interior holds the measurements taken inside a region
type Interior struct {
	Shape    geometry.Shape
	Nuclear  imaging.Stats
	Reporter imaging.Stats
}

// Exterior holds the measurements taken over the band around a region
type Exterior struct {
	Nuclear  imaging.Stats
	Reporter imaging.Stats
}

// Row is the feature vector of one region
type Row struct {
	Index int
	Interior
	Exterior Exterior
}

// AxisRatio returns minor/major of the fitted ellipse
func (r Row) AxisRatio() float64 { return r.Shape.AxisRatio() }

// FragRatio returns area/perimeter
func (r Row) FragRatio() float64 { return r.Shape.FragRatio() }

// Table is the ordered set of feature rows of an entry
type Table struct {
	Rows []Row
	Path string // CSV the table was persisted to, empty if never written
}

// Len returns the number of rows
func (t Table) Len() int { return len(t.Rows) }

// Extractor measures regions on a nuclear and a reporter plane of equal size
type Extractor struct {
	BandWidth int // exterior band width in pixels
}

// MeasureInterior is the first pass: shape descriptors from the nuclear
// geometry and interior intensities on both channels.
func MeasureInterior(nuclear, reporter *imaging.Plane, regions []roi.Region) []Interior {
	out := make([]Interior, len(regions))
	for i, r := range regions {
		mask := geometry.Rasterize(r.Polygon, nuclear.Width, nuclear.Height)
		out[i] = Interior{
			Shape:    geometry.Describe(r.Polygon, mask),
			Nuclear:  imaging.MaskStats(nuclear, mask),
			Reporter: imaging.MaskStats(reporter, mask),
		}
	}
	return out
}

// MeasureExterior is the second pass: intensities over a band of width pixels
// around each region, built from the same geometry as the interior pass.
func MeasureExterior(nuclear, reporter *imaging.Plane, regions []roi.Region, width int) []Exterior {
	out := make([]Exterior, len(regions))
	for i, r := range regions {
		mask := geometry.Rasterize(r.Polygon, nuclear.Width, nuclear.Height)
		band := geometry.Band(mask, width, nuclear.Width, nuclear.Height)
		out[i] = Exterior{
			Nuclear:  imaging.MaskStats(nuclear, band),
			Reporter: imaging.MaskStats(reporter, band),
		}
	}
	return out
}

// Extract runs both passes and assembles the table in region order
func (x Extractor) Extract(nuclear, reporter *imaging.Plane, regions []roi.Region) Table {
	interior := MeasureInterior(nuclear, reporter, regions)
	exterior := MeasureExterior(nuclear, reporter, regions, x.BandWidth)

	t := Table{Rows: make([]Row, len(regions))}
	for i := range regions {
		t.Rows[i] = Row{Index: regions[i].Index, Interior: interior[i], Exterior: exterior[i]}
	}

	GetLogger().Debug("features extracted",
		logger.Int("regions", len(regions)),
		logger.Int("band_width", x.BandWidth))

	return t
}

// WriteCSV writes the table in columnar form: each line is a feature name
// followed by its value for every region. The label line is all zeros.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	record := make([]string, 1+len(t.Rows))
	for _, name := range Columns {
		record[0] = name
		for i, r := range t.Rows {
			record[i+1] = r.value(name)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Row) value(column string) string {
	switch column {
	case "idx":
		return strconv.Itoa(r.Index)
	case "label":
		return "0"
	case "majors":
		return formatFloat(r.Shape.Major)
	case "minors":
		return formatFloat(r.Shape.Minor)
	case "area":
		return formatFloat(r.Shape.Area)
	case "perimeter":
		return formatFloat(r.Shape.Perimeter)
	case "circularity":
		return formatFloat(r.Shape.Circularity)
	case "AR":
		return formatFloat(r.Shape.AR)
	case "roundness":
		return formatFloat(r.Shape.Round)
	case "solidity":
		return formatFloat(r.Shape.Solidity)
	case "nucl_std_in":
		return formatFloat(r.Nuclear.Std)
	case "nucl_std_out":
		return formatFloat(r.Exterior.Nuclear.Std)
	case "nucl_mean_in":
		return formatFloat(r.Nuclear.Mean)
	case "nucl_mean_out":
		return formatFloat(r.Exterior.Nuclear.Mean)
	default:
		return ""
	}
}

// formatFloat writes the shortest exact representation; NaN becomes "NaN"
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// GetLogger returns the features module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("features")
}
