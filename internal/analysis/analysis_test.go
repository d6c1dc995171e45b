package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/8gabri8/TST-bioimage/internal/classify"
	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/datastore"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/geometry"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/imaging/opencv"
	"github.com/8gabri8/TST-bioimage/internal/notify"
	"github.com/8gabri8/TST-bioimage/internal/pipeline"
	"github.com/8gabri8/TST-bioimage/internal/report"
	"github.com/8gabri8/TST-bioimage/internal/segment"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

const size = 40

const (
	nuclearName  = "A - 1(fld 1 wv TexasRed - Cy3).tif"
	reporterName = "A - 1(fld 1 wv YFP - Cy3).tif"
)

type fixedClassifier []int

func (f fixedClassifier) Classify(context.Context, features.Table) ([]int, error) {
	return f, nil
}

type recordingPlotter struct {
	mu     sync.Mutex
	calls  []string
	status report.PlotStatus
}

func (r *recordingPlotter) Render(_ context.Context, reportPath, outDir string) (report.PlotStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportPath+" "+outDir)
	return r.status, nil
}

var identity = imaging.PreprocessFunc(func(_ context.Context, p *imaging.Plane) (*imaging.Plane, error) {
	return p, nil
})

func square(x, y, side float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + side, Y: y}, {X: x + side, Y: y + side}, {X: x, Y: y + side}}
}

// twoNuclei segments every plane into two nuclei, the first one sitting on
// the bright reporter patch
var twoNuclei = segment.SegmenterFunc(func(context.Context, *imaging.Plane) ([]geometry.Polygon, error) {
	return []geometry.Polygon{square(5, 5, 6), square(25, 25, 6)}, nil
})

func writePlane(t *testing.T, fs afero.Fs, path string, p *imaging.Plane) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	f, err := fs.Create(path)
	require.NoError(t, err)
	require.NoError(t, imaging.EncodeTIFF(f, p))
	require.NoError(t, f.Close())
}

// writePair writes a nuclear plane and a textured reporter plane whose
// pixels inside the first nucleus are bright
func writePair(t *testing.T, fs afero.Fs, nuclearPath, reporterPath string) {
	t.Helper()
	nuclear := imaging.NewPlane(size, size)
	reporter := imaging.NewPlane(size, size)
	for y := range size {
		for x := range size {
			nuclear.Set(x, y, 200)
			reporter.Set(x, y, float64(100+(x%2)*50))
		}
	}
	for y := 5; y < 11; y++ {
		for x := 5; x < 11; x++ {
			reporter.Set(x, y, 5000)
		}
	}
	writePlane(t, fs, nuclearPath, nuclear)
	writePlane(t, fs, reporterPath, reporter)
}

// dataset lays out well A1 with one valid entry and well B2 holding a lone
// reporter image
func dataset(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writePair(t, fs, filepath.Join("/data", "A1", nuclearName), filepath.Join("/data", "A1", reporterName))
	writePlane(t, fs, filepath.Join("/data", "B2", "B - 2(fld 1 wv YFP - Cy3).tif"), imaging.NewPlane(size, size))
	return fs
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Input.Path = "/data"
	s.Output.Path = "/results"
	s.Output.Report = "output.csv"
	s.Output.Summary = "summary.csv"
	s.Output.Format = FormatTable
	s.Filter = conf.FilterSettings{AreaMin: 10, AreaMax: 80, Circularity: 0.9, NoiseStd: 10}
	s.Features.BandWidth = 2
	s.Classify.Engine = conf.ClassifierRandomForest
	s.Classify.Margin = 30
	s.Segmentation.Engine = conf.SegmenterStarDist
	s.Plots.Enabled = true
	return s
}

func testOptions(fs afero.Fs, plotter report.PlotRenderer) []Option {
	return []Option{
		WithFs(fs),
		WithPreprocessor(identity),
		WithSegmenter(twoNuclei),
		WithClassifier(fixedClassifier{1, 0}),
		WithPlotRenderer(plotter),
	}
}

func TestDirectoryAnalysisWritesReport(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	plotter := &recordingPlotter{status: report.PlotRendered}
	settings := testSettings()

	rr, err := DirectoryAnalysis(context.Background(), settings, testOptions(fs, plotter)...)
	require.NoError(t, err)

	assert.NotEmpty(t, rr.RunID)
	assert.False(t, rr.Cancelled)
	require.Len(t, rr.Wells, 2)
	assert.Equal(t, 1, rr.Entries)
	assert.Equal(t, 1, rr.Processed)
	assert.Equal(t, map[string]int{"normal": 1}, rr.Statuses)

	data, err := afero.ReadFile(fs, "/results/output.csv")
	require.NoError(t, err)
	assert.Equal(t,
		report.Header+"\n"+"A1,1,1.000000,1,0.000000,0,0.000000,0,2,1,Normal\n",
		string(data))

	require.Len(t, rr.Summaries, 1)
	assert.Equal(t, "A1", rr.Summaries[0].Name)
	exists, err := afero.Exists(fs, "/results/summary.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, report.PlotRendered.String(), rr.PlotStatus)
	assert.Equal(t, []string{"/results/output.csv /results"}, plotter.calls)

	exists, err = afero.Exists(fs, "/results/RoiSet_final_A_1_1.json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = afero.DirExists(fs, "/results/temp")
	require.NoError(t, err)
	assert.False(t, exists, "temp directory is removed after the run")
}

func TestDirectoryAnalysisKeepsTemp(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	settings := testSettings()
	settings.Output.KeepTemp = true

	_, err := DirectoryAnalysis(context.Background(), settings,
		testOptions(fs, &recordingPlotter{status: report.PlotRendered})...)
	require.NoError(t, err)

	for _, path := range []string{
		"/results/temp/RoiSet_stardist_A_1_1.json",
		"/results/temp/RoiSet_prefiltering_A_1_1.json",
		"/results/temp/data_A_1_1.csv",
	} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.True(t, exists, path)
	}
}

func TestDirectoryAnalysisManifest(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	settings := testSettings()
	settings.MQTT.Password = "hunter2"
	settings.Notify.URLs = []string{"telegram://token@telegram?chats=1"}

	rr, err := DirectoryAnalysis(context.Background(), settings,
		testOptions(fs, &recordingPlotter{status: report.PlotRendered})...)
	require.NoError(t, err)
	require.Equal(t, "/results/"+ManifestName, rr.ManifestPath)

	data, err := afero.ReadFile(fs, rr.ManifestPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.NotContains(t, string(data), "token@")

	var m Manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, rr.RunID, m.RunID)
	assert.Equal(t, 2, m.Wells)
	assert.Equal(t, 1, m.Processed)
	assert.Equal(t, map[string]int{"normal": 1}, m.Statuses)
	assert.Equal(t, []PartialWell{{Name: "B2", Dropped: []string{"B_2_1"}}}, m.Partial)
	assert.Equal(t, "rendered", m.PlotStatus)

	// The caller's settings are left untouched
	assert.Equal(t, "hunter2", settings.MQTT.Password)
	assert.Equal(t, "telegram://token@telegram?chats=1", settings.Notify.URLs[0])
}

func TestDirectoryAnalysisCancelled(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	plotter := &recordingPlotter{status: report.PlotRendered}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr, err := DirectoryAnalysis(ctx, testSettings(), testOptions(fs, plotter)...)
	require.NoError(t, err)

	assert.True(t, rr.Cancelled)
	assert.Zero(t, rr.Processed)
	assert.Equal(t, PlotSkipped, rr.PlotStatus)
	assert.Empty(t, plotter.calls)

	data, err := afero.ReadFile(fs, "/results/output.csv")
	require.NoError(t, err)
	assert.Equal(t, report.Header+"\n", string(data))

	e, ok := rr.Wells[0].Entry("A_1_1")
	require.True(t, ok)
	assert.Equal(t, well.StatusPending, e.Status)
}

func TestDirectoryAnalysisNoUsableWellsSkipsRenderer(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	plotter := &recordingPlotter{status: report.PlotRendered}
	opts := append(testOptions(fs, plotter), WithClassifier(fixedClassifier{0, 0}))

	rr, err := DirectoryAnalysis(context.Background(), testSettings(), opts...)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"no_target_stage_regions": 1}, rr.Statuses)
	assert.Empty(t, rr.Summaries)
	assert.Equal(t, report.PlotNoUsableData.String(), rr.PlotStatus)
	assert.Empty(t, plotter.calls)
}

func TestDirectoryAnalysisPlotsDisabled(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	plotter := &recordingPlotter{status: report.PlotRendered}
	settings := testSettings()
	settings.Plots.Enabled = false

	rr, err := DirectoryAnalysis(context.Background(), settings, testOptions(fs, plotter)...)
	require.NoError(t, err)
	assert.Equal(t, PlotDisabled, rr.PlotStatus)
	assert.Empty(t, plotter.calls)
}

func TestDirectoryAnalysisMissingDataRoot(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Input.Path = "/missing"

	_, err := DirectoryAnalysis(context.Background(), settings,
		testOptions(afero.NewMemMapFs(), &recordingPlotter{})...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIndexing))

	settings.Input.Path = ""
	_, err = DirectoryAnalysis(context.Background(), settings,
		testOptions(afero.NewMemMapFs(), &recordingPlotter{})...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDirectoryAnalysisUnwritableResults(t *testing.T) {
	t.Parallel()

	fs := afero.NewReadOnlyFs(dataset(t))
	_, err := DirectoryAnalysis(context.Background(), testSettings(),
		testOptions(fs, &recordingPlotter{})...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestDirectoryAnalysisSinks(t *testing.T) {
	t.Parallel()

	fs := dataset(t)
	dir := t.TempDir()
	settings := testSettings()
	settings.Datastore.SQLite.Enabled = true
	settings.Datastore.SQLite.Path = filepath.Join(dir, "results.db")
	settings.Mirror.Enabled = true
	settings.Mirror.Endpoint = "file:///mirror"
	settings.Mirror.Prefix = "plates"
	settings.Metrics.Enabled = true
	settings.Metrics.Path = filepath.Join(dir, "tfa.prom")

	rr, err := DirectoryAnalysis(context.Background(), settings,
		testOptions(fs, &recordingPlotter{status: report.PlotRendered})...)
	require.NoError(t, err)

	// Results database
	store, err := datastore.OpenSQLite(settings.Datastore.SQLite.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	run, err := store.GetRun(context.Background(), rr.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Entries)
	assert.Equal(t, 1, run.Normal)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "A_1_1", run.Results[0].Key)
	assert.Equal(t, 1, run.Results[0].TotalTargetStage)

	// Mirror
	base := filepath.Join("/mirror", "plates", rr.RunID)
	for _, name := range []string{"output.csv", "summary.csv", ManifestName, "RoiSet_final_A_1_1.json"} {
		exists, err := afero.Exists(fs, filepath.Join(base, name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	exists, err := afero.DirExists(fs, filepath.Join(base, "temp"))
	require.NoError(t, err)
	assert.False(t, exists)

	// Metrics textfile
	data, err := os.ReadFile(settings.Metrics.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tfa_entries_total{status="normal"} 1`)
	assert.Contains(t, string(data), `tfa_sink_operations_total{sink="mirror",status="success"} 1`)
}

func TestUnknownEngines(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Segmentation.Engine = "cellpose"
	_, err := DirectoryAnalysis(context.Background(), settings,
		WithFs(dataset(t)), WithPlotRenderer(&recordingPlotter{}))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	settings = testSettings()
	settings.Classify.Engine = "svm"
	o := newOptions(nil)
	err = o.resolve(settings, "/tmp")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestEngineSelection(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	o := newOptions(nil)
	require.NoError(t, o.resolve(settings, "/work"))
	sd, ok := o.segmenter.(*segment.StarDist)
	require.True(t, ok)
	assert.Equal(t, "/work", sd.WorkDir)
	rf, ok := o.classifier.(*classify.RandomForest)
	require.True(t, ok)
	assert.Equal(t, settings.ClassifierModel(), rf.Model)

	settings.Segmentation.Engine = conf.SegmenterContour
	settings.Classify.Engine = conf.ClassifierPassthrough
	o = newOptions(nil)
	require.NoError(t, o.resolve(settings, "/work"))
	assert.IsType(t, opencv.ContourSegmenter{}, o.segmenter)
	assert.IsType(t, classify.Passthrough{}, o.classifier)
}

func TestFileAnalysisTable(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writePair(t, fs, "/pair/"+nuclearName, "/pair/"+reporterName)
	settings := testSettings()
	settings.Output.Path = ""

	var out bytes.Buffer
	e, err := FileAnalysis(context.Background(), settings, "/pair/"+nuclearName, "/pair/"+reporterName, &out,
		testOptions(fs, &recordingPlotter{})...)
	require.NoError(t, err)

	assert.Equal(t, "A_1_1", e.Key)
	assert.Equal(t, well.StatusNormal, e.Status)
	assert.Equal(t, 1, e.TotalTargetStage)
	assert.Contains(t, out.String(), "Total Nuclei Metaphase\t1\n")
	assert.Contains(t, out.String(), "Enriched to Nuclei Ratio\t1.000000\n")
}

func TestFileAnalysisJSONWithArtifacts(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writePair(t, fs, "/pair/nuclei.tif", "/pair/reporter.tif")
	settings := testSettings()
	settings.Output.Path = "/single"
	settings.Output.Format = FormatJSON

	var out bytes.Buffer
	_, err := FileAnalysis(context.Background(), settings, "/pair/nuclei.tif", "/pair/reporter.tif", &out,
		testOptions(fs, &recordingPlotter{})...)
	require.NoError(t, err)

	var ev notify.EntryEvent
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.Equal(t, "nuclei", ev.Key)
	assert.Equal(t, "pair", ev.Well)
	assert.Equal(t, "normal", ev.Status)
	assert.Equal(t, 2, ev.TotalNuclei)
	assert.InDelta(t, 1.0, ev.EnrichedRatio, 0)

	exists, err := afero.Exists(fs, "/single/RoiSet_final_nuclei.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileAnalysisUnknownFormat(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writePair(t, fs, "/pair/n.tif", "/pair/r.tif")
	settings := testSettings()
	settings.Output.Path = ""
	settings.Output.Format = "xml"

	e, err := FileAnalysis(context.Background(), settings, "/pair/n.tif", "/pair/r.tif", nil,
		testOptions(fs, &recordingPlotter{})...)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	require.NotNil(t, e)
	assert.Equal(t, well.StatusNormal, e.Status)
}

func TestFileAnalysisCancelled(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writePair(t, fs, "/pair/n.tif", "/pair/r.tif")
	settings := testSettings()
	settings.Output.Path = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FileAnalysis(ctx, settings, "/pair/n.tif", "/pair/r.tif", nil,
		testOptions(fs, &recordingPlotter{})...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunSummary(t *testing.T) {
	t.Parallel()

	rr := &RunReport{
		RunID:      "run-1",
		ResultsDir: "/results",
		Wells:      []*well.Well{well.New("A1", "/data/A1")},
		Processed:  3,
		Statuses:   map[string]int{"normal": 2, "empty": 1},
		PlotStatus: "rendered",
	}
	s := rr.Summary()
	assert.Equal(t, 1, s.Wells)
	assert.Equal(t, 3, s.Entries)
	msg := s.Message()
	assert.True(t, strings.Contains(msg, "empty: 1\nnormal: 2\n"), msg)
}

func TestAnalyzeWellsReleasesPlanes(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for fld := 1; fld <= 4; fld++ {
		writePair(t, fs,
			filepath.Join("/data", "A1", fmt.Sprintf("A - 1(fld %d wv TexasRed - Cy3).tif", fld)),
			filepath.Join("/data", "A1", fmt.Sprintf("A - 1(fld %d wv YFP - Cy3).tif", fld)))
	}
	wells, err := well.NewIndexer(fs).Index("/data")
	require.NoError(t, err)

	settings := testSettings()
	loader := imaging.NewLoader(fs, time.Hour)
	p := pipeline.New(pipelineConfig(settings), loader, identity, twoNuclei, fixedClassifier{1, 0})
	rr := &RunReport{Wells: well.Ordered(wells), Statuses: map[string]int{}}

	cancelled := analyzeWells(context.Background(), p, loader, &sinks{}, rr)

	assert.False(t, cancelled)
	assert.Equal(t, 4, rr.Processed)
	assert.Zero(t, loader.Cached())
}
