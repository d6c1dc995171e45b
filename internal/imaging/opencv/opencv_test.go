package opencv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/imaging"
)

func planeWithBlobs(w, h int, centers [][2]int, r int) *imaging.Plane {
	p := imaging.NewPlane(w, h)
	for i := range p.Pix {
		p.Pix[i] = 100
	}
	for _, c := range centers {
		for y := c[1] - r; y <= c[1]+r; y++ {
			for x := c[0] - r; x <= c[0]+r; x++ {
				dx, dy := x-c[0], y-c[1]
				if dx*dx+dy*dy <= r*r {
					p.Set(x, y, 4000)
				}
			}
		}
	}
	return p
}

func TestKernelSizeIsOdd(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 13, kernelSize(2))
	assert.Equal(t, 3, kernelSize(0.1))
	assert.Equal(t, 1, kernelSize(1.5)%2)
}

func TestContourSegmenterFindsBlobs(t *testing.T) {
	t.Parallel()

	p := planeWithBlobs(64, 64, [][2]int{{16, 16}, {44, 40}}, 5)
	polys, err := ContourSegmenter{}.Segment(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, polys, 2)
}

func TestPreprocessLeavesInputUntouched(t *testing.T) {
	t.Parallel()

	p := planeWithBlobs(48, 48, [][2]int{{24, 24}}, 4)
	before := p.Clone()

	out, err := Preprocessor{Sigma: 2, RollingBall: 10, Saturated: 0.35}.Preprocess(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, before.Pix, p.Pix)
	assert.Equal(t, p.Width, out.Width)
	assert.Greater(t, out.At(24, 24), out.At(2, 2))
}

func TestPreprocessHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Preprocessor{}.Preprocess(ctx, imaging.NewPlane(4, 4))
	require.ErrorIs(t, err, context.Canceled)
}
