package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

func plate() []*well.Well {
	b := well.New("B - 1", "/data/B - 1")
	b.Add(&well.Entry{
		Key: "B_1_1", Letter: "B", Number: 1, FoV: 1,
		TotalNuclei: 12, TotalTargetStage: 2, TotalEnriched: 1, TotalIntermediate: 1,
		EnrichedRatio: 0.5, IntermediateRatio: 0.5,
		Status: well.StatusNormal,
	})
	b.Add(&well.Entry{Key: "B_1_2", FoV: 2, Status: well.StatusPending})

	a := well.New("A - 3", "/data/A - 3")
	a.Add(&well.Entry{Key: "A_3_2", FoV: 2, TotalNuclei: 7, Status: well.StatusNoTargetStageRegions})
	a.Add(&well.Entry{Key: "A_3_1", FoV: 1, Status: well.StatusTooNoisy})
	a.Add(&well.Entry{
		Key: "A_3_3", FoV: 3,
		TotalNuclei: 4, TotalTargetStage: 1, TotalDepleted: 1, DepletedRatio: 1,
		Status: well.StatusNormal,
	})
	return []*well.Well{b, a}
}

func TestWriteRowsOrderAndFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := WriteRows(&buf, plate())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, Header, lines[0])
	assert.Equal(t, "A - 3,2,0.000000,0,0.000000,0,0.000000,0,7,0,No mitosis was detected in this sample", lines[1])
	assert.Equal(t, "A - 3,1,0.000000,0,0.000000,0,0.000000,0,0,0,The red or yellow channel of this entry was too noisy OR empty", lines[2])
	assert.Equal(t, "A - 3,3,0.000000,0,1.000000,1,0.000000,0,4,1,Normal", lines[3])
	assert.Equal(t, "B - 1,1,0.500000,1,0.000000,0,0.500000,1,12,2,Normal", lines[4])
}

func TestRowsQuoteWellNames(t *testing.T) {
	t.Parallel()

	w := well.New(`A "plate", 1`, "/data/x")
	w.Add(&well.Entry{
		Key: "A_1_1", FoV: 1, TotalNuclei: 3, TotalTargetStage: 1, TotalEnriched: 1, EnrichedRatio: 1,
		Status: well.StatusNormal,
	})

	var report bytes.Buffer
	_, err := WriteRows(&report, []*well.Well{w})
	require.NoError(t, err)
	records, err := csv.NewReader(&report).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[1], 11)
	assert.Equal(t, `A "plate", 1`, records[1][0])

	var summary bytes.Buffer
	require.NoError(t, WriteSummary(&summary, Summarize([]*well.Well{w})))
	records, err = csv.NewReader(&summary).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[1], 9)
	assert.Equal(t, `A "plate", 1`, records[1][0])
	assert.Equal(t, "0.333333", records[1][6])
}

func TestAggregatorOverwritesReport(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	agg := NewAggregator(fs)
	path := "/results/output.csv"
	require.NoError(t, afero.WriteFile(fs, path, []byte("stale\nstale\nstale\n"), 0o644))

	require.NoError(t, agg.Write(path, plate()))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), Header+"\n"))
	assert.NotContains(t, string(data), "stale")

	leftovers, err := afero.Glob(fs, "/results/.output.csv.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAggregatorFailureKeepsPreviousReport(t *testing.T) {
	t.Parallel()

	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/results/output.csv", []byte("previous"), 0o644))

	agg := NewAggregator(afero.NewReadOnlyFs(base))
	err := agg.Write("/results/output.csv", plate())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryReport))

	data, err := afero.ReadFile(base, "/results/output.csv")
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	wells := plate()
	extra := well.New("A - 3", "/other/A - 3")
	extra.Add(&well.Entry{Key: "A_3_9", FoV: 9, TotalNuclei: 4, TotalTargetStage: 1, TotalEnriched: 1, Status: well.StatusNormal})
	wells = append(wells, extra)

	got := Summarize(wells)
	require.Len(t, got, 2)

	assert.Equal(t, WellSummary{Name: "A - 3", TotalEnriched: 1, TotalDepleted: 1, TotalNuclei: 8, TotalTargetStage: 2}, got[0])
	assert.Equal(t, "B - 1", got[1].Name)

	fe, fd, fi := got[0].Fractions()
	assert.InDelta(t, 0.125, fe, 1e-12)
	assert.InDelta(t, 0.125, fd, 1e-12)
	assert.InDelta(t, 0, fi, 0)

	fe, _, _ = WellSummary{}.Fractions()
	assert.InDelta(t, 0, fe, 0)
}

func TestWriteSummaryWithoutUsableWells(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	w := well.New("C - 1", "/data/C - 1")
	w.Add(&well.Entry{Key: "C_1_1", FoV: 1, Status: well.StatusEmpty})

	summaries, err := NewAggregator(fs).WriteSummary("/results/summary.csv", []*well.Well{w})
	require.NoError(t, err)
	assert.Empty(t, summaries)

	data, err := afero.ReadFile(fs, "/results/summary.csv")
	require.NoError(t, err)
	assert.Equal(t, SummaryHeader+"\n", string(data))
}

func TestWriteEntryTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := plate()[0].Entries()[0]
	require.NoError(t, WriteEntryTable(&buf, e))
	assert.Contains(t, buf.String(), "Entry\tB_1_1\n")
	assert.Contains(t, buf.String(), "Enriched to Nuclei Ratio\t0.500000\n")
	assert.Contains(t, buf.String(), "Comment\tNormal\n")
}

// TestHelperProcess stands in for the plot script, invoked as
// <binary> -test.run=TestHelperProcess <report.csv> <out_dir>.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args[2:]
	if len(args) != 2 {
		os.Exit(2)
	}
	switch filepath.Base(args[0]) {
	case "empty.csv":
		os.Exit(10)
	case "broken.csv":
		os.Exit(1)
	}
	if err := os.WriteFile(filepath.Join(args[1], "fractions.png"), []byte("png"), 0o600); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestScriptRendererExitCodes(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")

	dir := t.TempDir()
	r := &ScriptRenderer{Python: os.Args[0], Script: "-test.run=TestHelperProcess", Timeout: 30 * time.Second}

	status, err := r.Render(context.Background(), filepath.Join(dir, "output.csv"), dir)
	require.NoError(t, err)
	assert.Equal(t, PlotRendered, status)
	assert.FileExists(t, filepath.Join(dir, "fractions.png"))

	status, err = r.Render(context.Background(), filepath.Join(dir, "empty.csv"), dir)
	require.NoError(t, err)
	assert.Equal(t, PlotNoUsableData, status)

	status, err = r.Render(context.Background(), filepath.Join(dir, "broken.csv"), dir)
	require.Error(t, err)
	assert.Equal(t, PlotFailed, status)
	assert.True(t, errors.IsCategory(err, errors.CategoryPlot))
}
