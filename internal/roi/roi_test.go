package roi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/geometry"
)

func rect(x, y, w, h float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
}

func params() FilterParams {
	return FilterParams{AreaMin: 10, AreaMax: 80, CircularityMax: 0.9, Width: 100, Height: 100}
}

func TestFromPolygonsNumbersFromOne(t *testing.T) {
	t.Parallel()

	polys := []geometry.Polygon{rect(10, 10, 4, 4), rect(30, 30, 5, 5)}
	regions := FromPolygons(polys)

	require.Len(t, regions, 2)
	assert.Equal(t, 1, regions[0].Index)
	assert.Equal(t, 2, regions[1].Index)
	assert.Equal(t, geometry.Rect{X: 30, Y: 30, W: 5, H: 5}, regions[1].Bounds)

	polys[0][0].X = 99
	assert.InDelta(t, 10, regions[0].Polygon[0].X, 0, "regions own their geometry")
}

func TestFilterRules(t *testing.T) {
	t.Parallel()

	regions := FromPolygons([]geometry.Polygon{
		rect(10, 10, 4, 4), // kept
		rect(20, 20, 2, 2), // too small
		rect(30, 30, 4, 4), // too round
		rect(0, 40, 4, 4),  // on left border
		rect(50, 50, 4, 4), // kept
		rect(60, 60, 9, 9), // too large
		rect(96, 70, 4, 4), // on right border
	})
	ms := []Measurement{
		{Area: 16, Circularity: 0.5},
		{Area: 4, Circularity: 0.5},
		{Area: 16, Circularity: 0.95},
		{Area: 16, Circularity: 0.5},
		{Area: 16, Circularity: 0.9},
		{Area: 81, Circularity: 0.5},
		{Area: 16, Circularity: 0.5},
	}

	before := append([]Region(nil), regions...)
	out, rej, err := Filter(regions, ms, params())
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Index)
	assert.Equal(t, 2, out[1].Index)
	assert.Equal(t, geometry.Rect{X: 50, Y: 50, W: 4, H: 4}, out[1].Bounds)
	assert.Equal(t, Rejections{Size: 2, Shape: 1, Border: 2}, rej)
	assert.Equal(t, 5, rej.Total())
	assert.Equal(t, before, regions, "input is not mutated")
}

func TestFilterAreaBoundsAreInclusive(t *testing.T) {
	t.Parallel()

	regions := FromPolygons([]geometry.Polygon{rect(10, 10, 2, 5), rect(30, 30, 8, 10)})
	out, _, err := Filter(regions, []Measurement{{Area: 10}, {Area: 80}}, params())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFilterIsIdempotent(t *testing.T) {
	t.Parallel()

	regions := FromPolygons([]geometry.Polygon{
		rect(10, 10, 5, 3),
		rect(0, 20, 5, 3),
		rect(40, 40, 12, 12),
		rect(70, 70, 6, 2),
		rect(50, 10, 2, 2),
	})
	p := params()

	once, _, err := Filter(regions, Measure(regions, p.Width, p.Height), p)
	require.NoError(t, err)
	require.NotEmpty(t, once)

	twice, rej, err := Filter(once, Measure(once, p.Width, p.Height), p)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Zero(t, rej.Total())
}

func TestFilterRejectsMisalignedMeasurements(t *testing.T) {
	t.Parallel()

	regions := FromPolygons([]geometry.Polygon{rect(10, 10, 4, 4)})
	_, _, err := Filter(regions, nil, params())
	require.Error(t, err)
}

func TestSelectRenumbers(t *testing.T) {
	t.Parallel()

	regions := FromPolygons([]geometry.Polygon{rect(1, 1, 2, 2), rect(5, 5, 2, 2), rect(9, 9, 2, 2)})
	out := Select(regions, func(r Region) bool { return r.Index != 2 })

	require.Len(t, out, 2)
	assert.Equal(t, 2, out[1].Index)
	assert.Equal(t, regions[2].Bounds, out[1].Bounds)
	assert.Equal(t, 3, regions[2].Index)
}
