// Package analysis runs tf-analyzer over a data directory or a single image
// pair, wiring the entry pipeline to the report writer and the optional sinks.
package analysis

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/diskmanager"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/notify"
	"github.com/8gabri8/TST-bioimage/internal/observability"
	"github.com/8gabri8/TST-bioimage/internal/observability/metrics"
	"github.com/8gabri8/TST-bioimage/internal/pipeline"
	"github.com/8gabri8/TST-bioimage/internal/provenance"
	"github.com/8gabri8/TST-bioimage/internal/report"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Plot states of a run that never reached the renderer
const (
	PlotDisabled = "disabled"
	PlotSkipped  = "skipped"
)

// Version is recorded in run manifests, set by the command line at startup
var Version = "dev"

// RunReport describes a finished directory analysis
type RunReport struct {
	RunID      string
	Version    string
	StartedAt  time.Time
	FinishedAt time.Time
	DataDir    string
	ResultsDir string

	Wells     []*well.Well // in report order
	Entries   int          // valid entries found by the indexer
	Processed int          // entries that reached a terminal status
	Statuses  map[string]int
	Cancelled bool

	ReportPath   string
	SummaryPath  string
	ManifestPath string
	Summaries    []report.WellSummary
	PlotStatus   string
}

// Summary returns the run notification of the report
func (rr *RunReport) Summary() notify.RunSummary {
	return notify.RunSummary{
		RunID:      rr.RunID,
		DataDir:    rr.DataDir,
		ResultsDir: rr.ResultsDir,
		Wells:      len(rr.Wells),
		Entries:    rr.Processed,
		Statuses:   rr.Statuses,
		Cancelled:  rr.Cancelled,
		PlotStatus: rr.PlotStatus,
		Duration:   rr.FinishedAt.Sub(rr.StartedAt),
	}
}

// DirectoryAnalysis indexes settings.Input.Path, analyzes every entry in
// report order and writes the report, summary, plots and manifest into
// settings.Output.Path.
//
// Entry failures never abort the run. Cancelling ctx stops before the next
// entry; the report is still written for the entries processed so far. Only
// an unusable data root or results directory is returned as an error before
// any output is written. A report write failure is returned after the run
// completes.
func DirectoryAnalysis(ctx context.Context, settings *conf.Settings, opts ...Option) (*RunReport, error) {
	rr := &RunReport{
		RunID:      uuid.NewString(),
		Version:    Version,
		StartedAt:  time.Now(),
		DataDir:    settings.Input.Path,
		ResultsDir: settings.Output.Path,
		Statuses:   make(map[string]int),
	}
	ctx = logger.WithTraceID(ctx, rr.RunID)
	log := GetLogger().WithContext(ctx)

	if rr.DataDir == "" {
		return nil, errors.Newf("no data directory given").
			Category(errors.CategoryValidation).
			Build()
	}

	tempDir := settings.TempDir()
	o := newOptions(opts)
	if err := o.resolve(settings, tempDir); err != nil {
		return nil, err
	}

	for _, dir := range []string{rr.ResultsDir, tempDir} {
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryFileIO).
				Context("operation", "create_output_dir").
				Context("path", dir).
				Build()
		}
	}
	// Free space is only meaningful on the OS filesystem
	if _, ok := o.fs.(*afero.OsFs); ok {
		if _, err := diskmanager.CheckFreeSpace(rr.ResultsDir, settings.Output.MinFree); err != nil {
			log.Warn("results directory is low on space", logger.Error(err))
		}
	}
	if !settings.Output.KeepTemp {
		defer func() {
			if err := o.fs.RemoveAll(tempDir); err != nil {
				log.Warn("failed to remove temp directory",
					logger.String("path", tempDir),
					logger.Error(err))
			}
		}()
	}

	wells, err := well.NewIndexer(o.fs).Index(rr.DataDir)
	if err != nil {
		return nil, err
	}
	rr.Wells = well.Ordered(wells)
	for _, w := range rr.Wells {
		rr.Entries += w.Len()
	}

	var m *observability.Metrics
	if settings.Metrics.Enabled {
		if m, err = observability.NewMetrics(); err != nil {
			log.Warn("metrics disabled for this run", logger.Error(err))
			m = nil
		}
	}

	loader := imaging.NewLoader(o.fs, settings.Cache.TTL)
	defer loader.Flush()

	popts := []pipeline.Option{
		pipeline.WithRecorder(provenance.NewWriter(o.fs, tempDir, rr.ResultsDir)),
	}
	var am *metrics.AnalysisMetrics
	if m != nil {
		am = m.Analysis
		popts = append(popts, pipeline.WithObserver(am))
	}
	s := openSinks(ctx, settings, o.fs, am)
	defer s.close()

	p := pipeline.New(pipelineConfig(settings), loader, o.preprocessor, o.segmenter, o.classifier, popts...)

	log.Info("run started",
		logger.String("run_id", rr.RunID),
		logger.String("data_dir", rr.DataDir),
		logger.Int("wells", len(rr.Wells)),
		logger.Int("entries", rr.Entries))

	rr.Cancelled = analyzeWells(ctx, p, loader, s, rr)

	reportErr := writeOutputs(ctx, settings, o, rr)

	rr.FinishedAt = time.Now()
	path, err := writeManifest(o.fs, rr.ResultsDir, newManifest(rr, settings))
	if err != nil {
		log.Warn("failed to write run manifest", logger.Error(err))
	} else {
		rr.ManifestPath = path
	}

	s.finish(ctx, rr)

	// Written last so the sink outcomes are included
	if m != nil {
		path := settings.Metrics.Path
		if path == "" {
			path = filepath.Join(rr.ResultsDir, "metrics.prom")
		}
		if err := m.WriteTextfile(path); err != nil {
			log.Warn("failed to write metrics", logger.Error(err))
		}
	}

	log.Info("run finished",
		logger.String("run_id", rr.RunID),
		logger.Int("processed", rr.Processed),
		logger.Bool("cancelled", rr.Cancelled),
		logger.String("plots", rr.PlotStatus),
		logger.Duration("duration", rr.FinishedAt.Sub(rr.StartedAt)))

	return rr, reportErr
}

// analyzeWells runs the pipeline over every entry in report order and reports
// whether the run was interrupted. Each entry's planes are loaded once, so
// they leave the cache as soon as the entry is done.
func analyzeWells(ctx context.Context, p *pipeline.Pipeline, loader *imaging.Loader, s *sinks, rr *RunReport) bool {
	for _, w := range rr.Wells {
		for _, e := range w.Entries() {
			if ctx.Err() != nil {
				return true
			}
			res := p.Run(ctx, e)
			loader.Forget(e.NuclearPath, e.ReporterPath)
			// An entry interrupted mid-way stays pending rather than
			// recording the failure caused by the cancellation
			if res.Status == well.StatusPending || (ctx.Err() != nil && res.Err != nil) {
				return true
			}
			res.Apply(e)
			rr.Processed++
			rr.Statuses[e.Status.String()]++
			s.publishEntry(ctx, rr.RunID, w, e)
		}
	}
	return false
}

// writeOutputs writes the report, the summary and the plots. Only the report
// failure is returned.
func writeOutputs(ctx context.Context, settings *conf.Settings, o *options, rr *RunReport) error {
	log := GetLogger().WithContext(ctx)
	agg := report.NewAggregator(o.fs)

	rr.ReportPath = filepath.Join(rr.ResultsDir, settings.Output.Report)
	reportErr := agg.Write(rr.ReportPath, rr.Wells)
	if reportErr != nil {
		log.Error("failed to write report",
			logger.String("path", rr.ReportPath),
			logger.Error(reportErr))
	}

	summaryPath := filepath.Join(rr.ResultsDir, settings.Output.Summary)
	summaries, err := agg.WriteSummary(summaryPath, rr.Wells)
	if err != nil {
		log.Warn("failed to write summary", logger.Error(err))
		summaries = report.Summarize(rr.Wells)
	} else {
		rr.SummaryPath = summaryPath
	}
	rr.Summaries = summaries

	switch {
	case !settings.Plots.Enabled:
		rr.PlotStatus = PlotDisabled
	case rr.Cancelled || reportErr != nil:
		rr.PlotStatus = PlotSkipped
	case len(summaries) == 0:
		rr.PlotStatus = report.PlotNoUsableData.String()
	default:
		status, err := o.plotter.Render(ctx, rr.ReportPath, rr.ResultsDir)
		if err != nil {
			log.Warn("plot rendering failed", logger.Error(err))
		}
		rr.PlotStatus = status.String()
	}

	return reportErr
}

// GetLogger returns the analysis module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
