package geometry

// Mask is a set of pixels inside a bounding rectangle of an image.
type Mask struct {
	Bounds Rect
	bits   []bool
}

// NewMask returns an empty mask covering bounds
func NewMask(bounds Rect) Mask {
	if bounds.W < 0 {
		bounds.W = 0
	}
	if bounds.H < 0 {
		bounds.H = 0
	}
	return Mask{Bounds: bounds, bits: make([]bool, bounds.W*bounds.H)}
}

// Rasterize returns the pixels of a width×height image whose centers fall inside p.
func Rasterize(p Polygon, width, height int) Mask {
	b := clip(p.Bounds(), width, height)
	m := NewMask(b)
	for y := b.Y; y < b.Y+b.H; y++ {
		for x := b.X; x < b.X+b.W; x++ {
			if p.Contains(Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}) {
				m.set(x, y)
			}
		}
	}
	return m
}

// Has reports whether pixel (x, y) is in the mask
func (m Mask) Has(x, y int) bool {
	if x < m.Bounds.X || y < m.Bounds.Y || x >= m.Bounds.X+m.Bounds.W || y >= m.Bounds.Y+m.Bounds.H {
		return false
	}
	return m.bits[(y-m.Bounds.Y)*m.Bounds.W+(x-m.Bounds.X)]
}

func (m Mask) set(x, y int) {
	m.bits[(y-m.Bounds.Y)*m.Bounds.W+(x-m.Bounds.X)] = true
}

// Count returns the number of pixels in the mask
func (m Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Each calls fn for every pixel in row-major order
func (m Mask) Each(fn func(x, y int)) {
	for i, b := range m.bits {
		if b {
			fn(m.Bounds.X+i%m.Bounds.W, m.Bounds.Y+i/m.Bounds.W)
		}
	}
}

// Band returns the pixels outside m lying within Euclidean distance width of a
// mask pixel, clipped to a imageW×imageH image. The input mask is not modified.
func Band(m Mask, width, imageW, imageH int) Mask {
	if width < 1 {
		width = 1
	}

	grown := clip(Rect{
		X: m.Bounds.X - width,
		Y: m.Bounds.Y - width,
		W: m.Bounds.W + 2*width,
		H: m.Bounds.H + 2*width,
	}, imageW, imageH)
	band := NewMask(grown)

	offsets := diskOffsets(width)
	m.Each(func(x, y int) {
		for _, o := range offsets {
			nx, ny := x+o[0], y+o[1]
			if nx < grown.X || ny < grown.Y || nx >= grown.X+grown.W || ny >= grown.Y+grown.H {
				continue
			}
			if !m.Has(nx, ny) {
				band.set(nx, ny)
			}
		}
	})

	return band
}

// diskOffsets lists the non-zero integer offsets with length <= r
func diskOffsets(r int) [][2]int {
	var out [][2]int
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if (dx != 0 || dy != 0) && dx*dx+dy*dy <= r*r {
				out = append(out, [2]int{dx, dy})
			}
		}
	}
	return out
}

func clip(r Rect, width, height int) Rect {
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.W, width), min(r.Y+r.H, height)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
