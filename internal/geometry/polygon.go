// Package geometry provides polygon regions, their pixel masks and shape descriptors.
//
// Every function here is pure: a Polygon is treated as an immutable snapshot and
// all measurements are derived from it on demand.
package geometry

import (
	"math"
	"slices"
)

// Point is a vertex in image coordinates. Pixel (x, y) spans [x, x+1) × [y, y+1).
type Point struct {
	X, Y float64
}

// Rect is an integer bounding box
type Rect struct {
	X, Y, W, H int
}

// Polygon is a closed outline; the last vertex connects back to the first.
type Polygon []Point

// Clone returns an independent copy of the polygon
func (p Polygon) Clone() Polygon {
	return slices.Clone(p)
}

// Bounds returns the smallest integer rectangle enclosing all vertices.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range p {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}

	x, y := int(math.Floor(minX)), int(math.Floor(minY))
	return Rect{
		X: x,
		Y: y,
		W: int(math.Ceil(maxX)) - x,
		H: int(math.Ceil(maxY)) - y,
	}
}

// TouchesBorder reports whether the rectangle reaches the edge of a width×height image.
func (r Rect) TouchesBorder(width, height int) bool {
	return r.X <= 0 || r.Y <= 0 || r.X+r.W >= width || r.Y+r.H >= height
}

// SignedArea returns the shoelace area, positive for counter-clockwise vertex order.
func (p Polygon) SignedArea() float64 {
	n := len(p)
	if n < 3 {
		return 0
	}

	var sum float64
	for i := range n {
		j := (i + 1) % n
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return sum / 2
}

// Area returns the enclosed polygon area
func (p Polygon) Area() float64 {
	return math.Abs(p.SignedArea())
}

// Perimeter returns the length of the closed outline
func (p Polygon) Perimeter() float64 {
	n := len(p)
	if n < 2 {
		return 0
	}

	var length float64
	for i := range n {
		j := (i + 1) % n
		length += math.Hypot(p[j].X-p[i].X, p[j].Y-p[i].Y)
	}
	return length
}

// Contains reports whether pt lies inside the polygon (even-odd rule).
func (p Polygon) Contains(pt Point) bool {
	inside := false
	n := len(p)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := p[i], p[j]
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) &&
			pt.X < (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// ConvexHull returns the hull of the points in counter-clockwise order (monotone chain).
func ConvexHull(points []Point) []Point {
	if len(points) < 3 {
		return slices.Clone(points)
	}

	pts := slices.Clone(points)
	slices.SortFunc(pts, func(a, b Point) int {
		if a.X != b.X {
			if a.X < b.X {
				return -1
			}
			return 1
		}
		switch {
		case a.Y < b.Y:
			return -1
		case a.Y > b.Y:
			return 1
		}
		return 0
	})

	hull := make([]Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

// cross computes the cross product of vectors OA and OB.
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
