package provenance

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/classify"
	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/roi"
)

func TestRegionSetRoundTripAndLocation(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/results/temp", "/results")
	regions := roi.FromPolygons([]geometry.Polygon{
		{{X: 1, Y: 1}, {X: 4.5, Y: 1}, {X: 4.5, Y: 3}},
		{{X: 10, Y: 10}, {X: 12, Y: 10}, {X: 12, Y: 12}, {X: 10, Y: 12}},
	})

	raw, err := w.RegionSet(StageSegmented, "A_3_2", regions)
	require.NoError(t, err)
	assert.Equal(t, "/results/temp/RoiSet_stardist_A_3_2.json", raw)

	final, err := w.RegionSet(StageFinal, "A_3_2", regions[1:])
	require.NoError(t, err)
	assert.Equal(t, "/results/RoiSet_final_A_3_2.json", final)

	got, err := w.ReadRegionSet(raw)
	require.NoError(t, err)
	assert.Equal(t, regions, got)
}

func TestFeatureTableWrittenToTemp(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/results/temp", "/results")

	path, err := w.FeatureTable("B_1_1", features.Table{Rows: []features.Row{{Index: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "/results/temp/data_B_1_1.csv", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "idx,1\nlabel,0\n"))
}

func TestLocalizationCSV(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/results/temp", "/results")

	points := []classify.Point{
		classify.Localize(500, 100, 30),
		classify.Localize(100, 110, 30),
	}
	points[0].Index, points[1].Index = 1, 2

	path, err := w.Localization("C_2_4", points)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "idx,reporter_mean_in,reporter_mean_out,gap,distance,class", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,500,100,-400,"))
	assert.True(t, strings.HasSuffix(lines[1], ",enriched"))
	assert.True(t, strings.HasSuffix(lines[2], ",intermediate"))
}

func TestWriteFailsOnReadOnlyFs(t *testing.T) {
	t.Parallel()

	w := NewWriter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/t", "/r")
	_, err := w.RegionSet(StageFiltered, "A_1_1", nil)
	require.Error(t, err)
}
