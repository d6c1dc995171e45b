package well

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte{0}, 0o644))
}

func TestParseFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		want FileName
		ok   bool
	}{
		{"reporter", "A - 3(fld 2 wv YFP - anything).tif", FileName{Key: "A_3_2", Letter: "A", Number: 3, FoV: 2, Channel: "YFP"}, true},
		{"nuclear lower case", "B - 12(fld 7 wv texasred - x)", FileName{Key: "B_12_7", Letter: "B", Number: 12, FoV: 7, Channel: "texasred"}, true},
		{"zero padded number keeps text", "C - 03(fld 1 wv YFP - y)", FileName{Key: "C_03_1", Letter: "C", Number: 3, FoV: 1, Channel: "YFP"}, true},
		{"lower case letter", "a - 3(fld 2 wv YFP - x)", FileName{}, false},
		{"no field of view", "A - 3(wv YFP - x)", FileName{}, false},
		{"thumbnail", "thumbs.db", FileName{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFileName(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexPairsChannels(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	touch(t, fs, "/data/A1/A - 3(fld 2 wv YFP - anything)")
	touch(t, fs, "/data/A1/A - 3(fld 2 wv TexasRed - anything)")

	wells, err := NewIndexer(fs).Index("/data")
	require.NoError(t, err)
	require.Len(t, wells, 1)

	w := wells[0]
	assert.Equal(t, "A", w.Label)
	assert.Equal(t, "A1", w.Name)
	assert.False(t, w.Partial)
	require.Equal(t, 1, w.Len())

	e, ok := w.Entry("A_3_2")
	require.True(t, ok)
	assert.True(t, e.IsValid())
	assert.Equal(t, 2, e.FoV)
	assert.Equal(t, "/data/A1/A - 3(fld 2 wv YFP - anything)", e.ReporterPath)
	assert.Equal(t, "/data/A1/A - 3(fld 2 wv TexasRed - anything)", e.NuclearPath)
	assert.Equal(t, StatusPending, e.Status)
}

func TestIndexDropsIncompleteEntries(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	touch(t, fs, "/data/B2/B - 1(fld 1 wv YFP - a)")
	touch(t, fs, "/data/B2/B - 1(fld 1 wv TexasRed - a)")
	touch(t, fs, "/data/B2/B - 1(fld 2 wv YFP - a)")
	touch(t, fs, "/data/B2/B - 1(fld 3 wv DAPI - a)")
	touch(t, fs, "/data/B2/notes.txt")
	touch(t, fs, "/data/C3/C - 1(fld 1 wv YFP - a)")
	touch(t, fs, "/data/C3/C - 1(fld 1 wv TexasRed - a)")

	wells, err := NewIndexer(fs).Index("/data")
	require.NoError(t, err)
	require.Len(t, wells, 2)

	b := wells[0]
	assert.True(t, b.Partial)
	assert.Equal(t, []string{"B_1_2"}, b.DroppedKeys)
	assert.Equal(t, 1, b.Len())
	_, ok := b.Entry("B_1_2")
	assert.False(t, ok)

	c := wells[1]
	assert.False(t, c.Partial, "other wells are unaffected")
	assert.Equal(t, 1, c.Len())
}

func TestIndexMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := NewIndexer(afero.NewMemMapFs()).Index("/missing")
	require.Error(t, err)
}

func TestIndexEmptyWell(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/D4", 0o755))

	wells, err := NewIndexer(fs).Index("/data")
	require.NoError(t, err)
	require.Len(t, wells, 1)
	assert.Equal(t, 0, wells[0].Len())
	assert.False(t, wells[0].Partial)
}

func TestEntriesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	w := New("A1", "/data/A1")
	for _, k := range []string{"A_1_3", "A_1_1", "A_1_2"} {
		w.Add(&Entry{Key: k, NuclearPath: "n", ReporterPath: "r"})
	}
	w.Add(&Entry{Key: "A_1_1", NuclearPath: "n2", ReporterPath: "r2"})

	var keys []string
	for _, e := range w.Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"A_1_3", "A_1_1", "A_1_2"}, keys)
	e, _ := w.Entry("A_1_1")
	assert.Equal(t, "n2", e.NuclearPath)
}

func TestOrderedIsStableByLabel(t *testing.T) {
	t.Parallel()

	wells := []*Well{
		New("C1", ""),
		New("A2", ""),
		New("B1", ""),
		New("A1", ""),
	}

	var names []string
	for _, w := range Ordered(wells) {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"A2", "A1", "B1", "C1"}, names)
	assert.Equal(t, "C1", wells[0].Name, "input slice is not reordered")
}

func TestStatusComment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Normal", StatusNormal.Comment())
	assert.Equal(t, "The red or yellow channel of this entry was too noisy OR empty", StatusTooNoisy.Comment())
	assert.Equal(t, "No mitosis was detected in this sample", StatusNoTargetStageRegions.Comment())
	assert.Equal(t, "Image has no cells", StatusEmpty.Comment())
	assert.Equal(t, "no_target_stage_regions", StatusNoTargetStageRegions.String())
}
