package index

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/well"
)

func TestPrint(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for _, name := range []string{
		"/data/B1/B - 1(fld 1 wv TexasRed - Cy3).tif",
		"/data/B1/B - 1(fld 1 wv YFP - Cy3).tif",
		"/data/A4/A - 4(fld 2 wv YFP - Cy3).tif",
	} {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(fs, name, []byte{0}, 0o644))
	}
	wells, err := well.NewIndexer(fs).Index("/data")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Print(&out, well.Ordered(wells)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"A4", "true", "A_4_2"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"B1", "B_1_1", "false"}, strings.Fields(lines[2]))
	assert.Equal(t, "2 wells, 1 entries", lines[3])
}
