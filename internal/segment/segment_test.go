package segment

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
)

// TestHelperProcess stands in for the StarDist wrapper script. It is invoked
// as <binary> -test.run=TestHelperProcess <image.tif> <probability> <overlap>.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args[2:]
	if len(args) != 3 {
		os.Exit(2)
	}
	if _, err := os.Stat(args[0]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if args[1] == "0.99" {
		time.Sleep(time.Minute)
	}
	fmt.Print(`[[[1,1],[5,1],[5,5],[1,5]],[[10,10],[14,10],[12,14]]]`)
	os.Exit(0)
}

func helperStarDist(t *testing.T) *StarDist {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return &StarDist{
		Python:      os.Args[0],
		Script:      "-test.run=TestHelperProcess",
		Probability: 0.5,
		Overlap:     0.25,
		WorkDir:     t.TempDir(),
		Timeout:     30 * time.Second,
	}
}

func TestParsePolygons(t *testing.T) {
	t.Parallel()

	polys, err := ParsePolygons([]byte(`[[[0,0],[4,0],[4,4],[0,4]],[[1,1],[2,2]],[]]`))
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, geometry.Point{X: 4, Y: 4}, polys[0][2])

	empty, err := ParsePolygons([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParsePolygons([]byte(`Traceback (most recent call last)`))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySegmentation))
}

func TestStarDistSegment(t *testing.T) {
	sd := helperStarDist(t)

	polys, err := sd.Segment(context.Background(), imaging.NewPlane(16, 16))
	require.NoError(t, err)
	require.Len(t, polys, 2)
	assert.InDelta(t, 16, polys[0].Area(), 1e-9)

	left, err := os.ReadDir(sd.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, left, "input image is removed")
}

func TestStarDistTimeout(t *testing.T) {
	sd := helperStarDist(t)
	sd.Probability = 0.99
	sd.Timeout = 200 * time.Millisecond

	_, err := sd.Segment(context.Background(), imaging.NewPlane(4, 4))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}

func TestSegmenterFunc(t *testing.T) {
	t.Parallel()

	var s Segmenter = SegmenterFunc(func(context.Context, *imaging.Plane) ([]geometry.Polygon, error) {
		return []geometry.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}}, nil
	})
	polys, err := s.Segment(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, polys, 1)
}
