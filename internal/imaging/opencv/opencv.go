// Package opencv implements the preprocessing chain and a threshold based
// nuclei segmenter on top of OpenCV. It is the only package linking gocv.
package opencv

import (
	"context"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// minContourPoints drops contours too small to describe a nucleus outline
const minContourPoints = 3

// Preprocessor blurs, removes background and stretches the contrast of a plane.
type Preprocessor struct {
	Sigma       float64 // gaussian blur sigma, 0 skips the blur
	RollingBall int     // background radius in pixels, 0 skips subtraction
	Saturated   float64 // percent of pixels saturated by the contrast stretch
}

// Preprocess returns the processed copy of p
func (pp Preprocessor) Preprocess(ctx context.Context, p *imaging.Plane) (*imaging.Plane, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Width == 0 || p.Height == 0 {
		return nil, errors.Newf("cannot preprocess empty plane").
			Category(errors.CategoryImageProcessing).
			Context("operation", "preprocess").
			Build()
	}

	mat := toMat32(p)
	defer mat.Close()

	if pp.Sigma > 0 {
		k := kernelSize(pp.Sigma)
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(mat, &blurred, image.Point{X: k, Y: k}, pp.Sigma, pp.Sigma, gocv.BorderDefault)
		blurred.CopyTo(&mat)
	}

	if pp.RollingBall > 0 {
		// White top-hat with a disk keeps structures smaller than the ball
		size := 2*pp.RollingBall + 1
		kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: size, Y: size})
		defer kernel.Close()
		foreground := gocv.NewMat()
		defer foreground.Close()
		gocv.MorphologyEx(mat, &foreground, gocv.MorphTophat, kernel)
		foreground.CopyTo(&mat)
	}

	out := fromMat32(mat)
	out = imaging.StretchContrast(out, pp.Saturated)

	GetLogger().Debug("plane preprocessed",
		logger.Float64("sigma", pp.Sigma),
		logger.Int("rolling_ball", pp.RollingBall),
		logger.Float64("saturated", pp.Saturated))

	return out, nil
}

// ContourSegmenter finds nuclei as external contours of an Otsu threshold mask.
// It is the in-process alternative to the StarDist collaborator.
type ContourSegmenter struct{}

// Segment returns one polygon per external contour of the thresholded plane
func (ContourSegmenter) Segment(ctx context.Context, p *imaging.Plane) ([]geometry.Polygon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Width == 0 || p.Height == 0 {
		return nil, nil
	}

	gray := toMat8(p)
	defer gray.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	polygons := make([]geometry.Polygon, 0, contours.Size())
	for i := range contours.Size() {
		points := contours.At(i).ToPoints()
		if len(points) < minContourPoints {
			continue
		}
		poly := make(geometry.Polygon, len(points))
		for j, pt := range points {
			poly[j] = geometry.Point{X: float64(pt.X), Y: float64(pt.Y)}
		}
		polygons = append(polygons, poly)
	}

	GetLogger().Debug("contours segmented",
		logger.Int("contours", contours.Size()),
		logger.Int("regions", len(polygons)))

	return polygons, nil
}

// kernelSize returns the odd gaussian kernel width covering ±3 sigma
func kernelSize(sigma float64) int {
	k := int(sigma*6) + 1
	if k%2 == 0 {
		k++
	}
	return max(k, 3)
}

func toMat32(p *imaging.Plane) gocv.Mat {
	mat := gocv.NewMatWithSize(p.Height, p.Width, gocv.MatTypeCV32F)
	for y := range p.Height {
		for x := range p.Width {
			mat.SetFloatAt(y, x, float32(p.At(x, y)))
		}
	}
	return mat
}

func fromMat32(mat gocv.Mat) *imaging.Plane {
	p := imaging.NewPlane(mat.Cols(), mat.Rows())
	for y := range p.Height {
		for x := range p.Width {
			p.Set(x, y, float64(mat.GetFloatAt(y, x)))
		}
	}
	return p
}

// toMat8 min-max scales the plane into an 8-bit matrix
func toMat8(p *imaging.Plane) gocv.Mat {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range p.Pix {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	mat := gocv.NewMatWithSize(p.Height, p.Width, gocv.MatTypeCV8UC1)
	for y := range p.Height {
		for x := range p.Width {
			mat.SetUCharAt(y, x, uint8(math.Round((p.At(x, y)-lo)*scale)))
		}
	}
	return mat
}

// GetLogger returns the opencv module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("imaging").Module("opencv")
}
