package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Shape holds the shape descriptors of one region
type Shape struct {
	Area        float64 // pixel count of the mask
	Perimeter   float64 // outline length
	Major       float64 // fitted ellipse major axis
	Minor       float64 // fitted ellipse minor axis
	Circularity float64 // 4π·area/perimeter², capped at 1
	AR          float64 // major/minor
	Round       float64 // 4·area/(π·major²)
	Solidity    float64 // polygon area / convex hull area
}

// AxisRatio returns minor/major, NaN when major is zero.
func (s Shape) AxisRatio() float64 {
	return Ratio(s.Minor, s.Major)
}

// FragRatio returns area/perimeter, NaN when perimeter is zero.
func (s Shape) FragRatio() float64 {
	return Ratio(s.Area, s.Perimeter)
}

// Ratio divides num by den and returns NaN for a zero denominator.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Describe derives shape descriptors from a polygon and its rasterized mask.
func Describe(p Polygon, m Mask) Shape {
	s := Shape{
		Area:      float64(m.Count()),
		Perimeter: p.Perimeter(),
	}

	s.Circularity = Ratio(4*math.Pi*s.Area, s.Perimeter*s.Perimeter)
	if s.Circularity > 1 {
		s.Circularity = 1
	}

	s.Major, s.Minor = fitEllipse(m, s.Area)
	s.AR = Ratio(s.Major, s.Minor)
	s.Round = Ratio(4*s.Area, math.Pi*s.Major*s.Major)

	hull := Polygon(ConvexHull(p))
	s.Solidity = Ratio(p.Area(), hull.Area())

	return s
}

// fitEllipse returns the axes of the ellipse with the same second moments as
// the mask, rescaled so the ellipse area equals area.
func fitEllipse(m Mask, area float64) (major, minor float64) {
	n := area
	if n == 0 {
		return 0, 0
	}

	var sx, sy float64
	m.Each(func(x, y int) {
		sx += float64(x) + 0.5
		sy += float64(y) + 0.5
	})
	cx, cy := sx/n, sy/n

	// Each pixel is a unit square, which adds 1/12 to the diagonal moments
	var uxx, uyy, uxy float64
	m.Each(func(x, y int) {
		dx := float64(x) + 0.5 - cx
		dy := float64(y) + 0.5 - cy
		uxx += dx * dx
		uyy += dy * dy
		uxy += dx * dy
	})
	uxx = uxx/n + 1.0/12
	uyy = uyy/n + 1.0/12
	uxy /= n

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(2, []float64{uxx, uxy, uxy, uyy}), false) {
		return 0, 0
	}
	values := eig.Values(nil) // ascending
	lMinor, lMajor := math.Max(values[0], 0), math.Max(values[1], 0)

	major = 4 * math.Sqrt(lMajor)
	minor = 4 * math.Sqrt(lMinor)

	if ellipse := math.Pi / 4 * major * minor; ellipse > 0 {
		scale := math.Sqrt(area / ellipse)
		major *= scale
		minor *= scale
	}

	return major, minor
}
