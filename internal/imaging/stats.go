package imaging

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/8gabri8/TST-bioimage/internal/geometry"
)

// Stats is the intensity summary of a set of pixels. Std is the sample
// standard deviation; both values are NaN for an empty set.
type Stats struct {
	N    int
	Mean float64
	Std  float64
}

// PlaneStats measures every pixel of the plane
func PlaneStats(p *Plane) Stats {
	return summarize(p.Pix)
}

// MaskStats measures the pixels of p selected by m
func MaskStats(p *Plane, m geometry.Mask) Stats {
	values := make([]float64, 0, m.Count())
	m.Each(func(x, y int) {
		if x < p.Width && y < p.Height {
			values = append(values, p.At(x, y))
		}
	})
	return summarize(values)
}

func summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{Mean: math.NaN(), Std: math.NaN()}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Stats{N: len(values), Mean: mean, Std: std}
}

// StretchContrast linearly maps the intensity range left after saturating
// saturated percent of pixels (split between both tails) onto [0, MaxIntensity].
// A new plane is returned; p is not modified.
func StretchContrast(p *Plane, saturated float64) *Plane {
	out := p.Clone()
	if len(p.Pix) == 0 {
		return out
	}

	sorted := slices.Clone(p.Pix)
	slices.Sort(sorted)

	tail := saturated / 200
	lo := stat.Quantile(tail, stat.Empirical, sorted, nil)
	hi := stat.Quantile(1-tail, stat.Empirical, sorted, nil)
	if hi <= lo {
		return out
	}

	scale := MaxIntensity / (hi - lo)
	for i, v := range out.Pix {
		out.Pix[i] = math.Min(math.Max((v-lo)*scale, 0), MaxIntensity)
	}

	return out
}
