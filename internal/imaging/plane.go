// Package imaging loads single-channel microscopy planes and measures intensities.
package imaging

import (
	"image"
	"image/color"
	"io"
	"math"
	"slices"

	// Register decoders used by the microscope exports
	_ "image/png"

	"golang.org/x/image/tiff"
)

// MaxIntensity is the top of the 16-bit range planes are encoded into
const MaxIntensity = math.MaxUint16

// Plane is a grayscale image with float64 intensities in row-major order.
type Plane struct {
	Width, Height int
	Pix           []float64
}

// NewPlane returns a zeroed width×height plane
func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the intensity at (x, y)
func (p *Plane) At(x, y int) float64 {
	return p.Pix[y*p.Width+x]
}

// Set stores v at (x, y)
func (p *Plane) Set(x, y int, v float64) {
	p.Pix[y*p.Width+x] = v
}

// Clone returns an independent copy of the plane
func (p *Plane) Clone() *Plane {
	return &Plane{Width: p.Width, Height: p.Height, Pix: slices.Clone(p.Pix)}
}

// FromImage converts a decoded image into a plane. 8 and 16 bit grayscale keep
// their raw values; anything else goes through the 16-bit gray model.
func FromImage(img image.Image) *Plane {
	b := img.Bounds()
	p := NewPlane(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := range p.Height {
			for x := range p.Width {
				p.Set(x, y, float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := range p.Height {
			for x := range p.Width {
				p.Set(x, y, float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		for y := range p.Height {
			for x := range p.Width {
				g, _ := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				p.Set(x, y, float64(g.Y))
			}
		}
	}

	return p
}

// Gray16 converts the plane to a 16-bit image, rounding and clamping values.
func (p *Plane) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	for y := range p.Height {
		for x := range p.Width {
			img.SetGray16(x, y, color.Gray16{Y: clamp16(p.At(x, y))})
		}
	}
	return img
}

// EncodeTIFF writes the plane as an uncompressed 16-bit TIFF.
func EncodeTIFF(w io.Writer, p *Plane) error {
	return tiff.Encode(w, p.Gray16(), &tiff.Options{Compression: tiff.Uncompressed})
}

func clamp16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= MaxIntensity:
		return MaxIntensity
	default:
		return uint16(math.Round(v))
	}
}
