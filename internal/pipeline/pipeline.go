// Package pipeline runs the analysis of one entry as a sequence of stages,
// from the noise gate on the raw planes to the localization of the nuclei
// kept by the stage classifier.
package pipeline

import (
	"context"
	"time"

	"github.com/8gabri8/TST-bioimage/internal/classify"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/observability/metrics"
	"github.com/8gabri8/TST-bioimage/internal/provenance"
	"github.com/8gabri8/TST-bioimage/internal/roi"
	"github.com/8gabri8/TST-bioimage/internal/segment"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// PlaneLoader decodes a channel image
type PlaneLoader interface {
	Load(path string) (*imaging.Plane, error)
}

// Recorder persists intermediate artifacts of an entry
type Recorder interface {
	RegionSet(stage, key string, regions []roi.Region) (string, error)
	FeatureTable(key string, table features.Table) (string, error)
	Localization(key string, points []classify.Point) (string, error)
}

// Observer receives pipeline measurements
type Observer interface {
	RecordEntry(status string, d time.Duration)
	RecordRegions(stage string, n int)
	RecordCollaborator(name, status string, d time.Duration)
}

// Config holds the thresholds of an entry analysis
type Config struct {
	NoiseStd        float64 // minimum reporter std
	AreaMin         float64
	AreaMax         float64
	Circularity     float64 // maximum circularity
	BandWidth       int
	Margin          float64
	SegmentTimeout  time.Duration
	ClassifyTimeout time.Duration
}

// Pipeline analyzes entries. It holds no per-entry state and may be reused
// for every entry of a run.
type Pipeline struct {
	cfg        Config
	loader     PlaneLoader
	preprocess imaging.Preprocessor
	segmenter  segment.Segmenter
	classifier classify.StageClassifier
	recorder   Recorder
	observer   Observer
}

// Option configures optional collaborators
type Option func(*Pipeline)

// WithRecorder persists region sets, feature tables and localization points
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithObserver reports stage measurements
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New returns a pipeline over the given collaborators
func New(cfg Config, loader PlaneLoader, pre imaging.Preprocessor, seg segment.Segmenter, cls classify.StageClassifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		loader:     loader,
		preprocess: pre,
		segmenter:  seg,
		classifier: cls,
		recorder:   nopRecorder{},
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run analyzes one entry. It never returns an error: entry failures are
// expressed as a terminal status on the result. A run interrupted by ctx
// ends with StatusPending and the context error.
func (p *Pipeline) Run(ctx context.Context, e *well.Entry) Result {
	start := time.Now()
	log := GetLogger().With(logger.String("entry", e.Key))

	st := &state{entry: e, res: Result{Key: e.Key}}
	stage := StageNoiseGate
	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			st.res.Status = well.StatusPending
			st.res.Err = err
			break
		}
		out := p.step(ctx, stage, st)
		if out.terminal() {
			st.res.Status = out.Status
			st.res.Err = out.Err
			st.res.Stage = stage
			break
		}
		stage = out.Next
	}
	if stage == StageDone {
		st.res.Stage = StageDone
		st.res.Status = well.StatusNormal
	}
	st.res.Duration = time.Since(start)

	if st.res.Status != well.StatusPending {
		p.observer.RecordEntry(st.res.Status.String(), st.res.Duration)
	}

	fields := []logger.Field{
		logger.String("status", st.res.Status.String()),
		logger.String("stage", st.res.Stage.String()),
		logger.Int("nuclei", st.res.TotalNuclei),
		logger.Int("target_stage", st.res.TotalTargetStage),
		logger.Duration("duration", st.res.Duration),
	}
	if st.res.Err != nil {
		fields = append(fields, logger.Error(st.res.Err))
		log.Warn("entry analysis ended early", fields...)
	} else {
		log.Info("entry analyzed", fields...)
	}
	return st.res
}

func (p *Pipeline) step(ctx context.Context, stage Stage, st *state) Outcome {
	switch stage {
	case StageNoiseGate:
		return p.noiseGate(st)
	case StagePreprocess:
		return p.preprocessStage(ctx, st)
	case StageSegment:
		return p.segmentStage(ctx, st)
	case StageGeometricFilter:
		return p.filterStage(st)
	case StageFeatureExtractInterior:
		return p.interiorStage(st)
	case StageFeatureExtractExterior:
		return p.exteriorStage(st)
	case StageStageGateClassify:
		return p.stageGate(ctx, st)
	case StageLocalizationClassify:
		return p.localize(st)
	default:
		return Stop(well.StatusEmpty, errors.Newf("unknown pipeline stage %d", int(stage)).
			Category(errors.CategoryValidation).
			Build())
	}
}

// noiseGate loads both channels and rejects entries whose reporter channel
// carries no usable signal
func (p *Pipeline) noiseGate(st *state) Outcome {
	nuclear, err := p.loader.Load(st.entry.NuclearPath)
	if err != nil {
		return Stop(well.StatusEmpty, err)
	}
	reporter, err := p.loader.Load(st.entry.ReporterPath)
	if err != nil {
		return Stop(well.StatusEmpty, err)
	}
	if nuclear.Width != reporter.Width || nuclear.Height != reporter.Height {
		return Stop(well.StatusEmpty, errors.Newf("channel size mismatch: nuclear %dx%d, reporter %dx%d",
			nuclear.Width, nuclear.Height, reporter.Width, reporter.Height).
			Category(errors.CategoryImageProcessing).
			Context("entry", st.entry.Key).
			Build())
	}
	st.nuclear, st.reporter = nuclear, reporter

	// NaN covers planes too small to have a sample deviation
	std := imaging.PlaneStats(reporter).Std
	if !(std >= p.cfg.NoiseStd) {
		GetLogger().Debug("reporter channel below noise threshold",
			logger.String("entry", st.entry.Key),
			logger.Float64("std", std),
			logger.Float64("threshold", p.cfg.NoiseStd))
		return Stop(well.StatusTooNoisy, nil)
	}
	return Continue(StagePreprocess)
}

func (p *Pipeline) preprocessStage(ctx context.Context, st *state) Outcome {
	prepared, err := p.preprocess.Preprocess(ctx, st.nuclear.Clone())
	if err != nil {
		return Stop(well.StatusEmpty, err)
	}
	st.prepared = prepared
	return Continue(StageSegment)
}

func (p *Pipeline) segmentStage(ctx context.Context, st *state) Outcome {
	if p.cfg.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.SegmentTimeout)
		defer cancel()
	}

	start := time.Now()
	polys, err := p.segmenter.Segment(ctx, st.prepared)
	p.observer.RecordCollaborator("segmenter", collaboratorStatus(err), time.Since(start))
	if err != nil {
		return Stop(well.StatusEmpty, err)
	}

	st.regions = roi.FromPolygons(polys)
	st.res.TotalNuclei = len(st.regions)
	p.observer.RecordRegions(provenance.StageSegmented, len(st.regions))
	// The raw set is kept even when empty so an Empty entry leaves a trace
	p.recordRegions(provenance.StageSegmented, st)
	if len(st.regions) == 0 {
		return Stop(well.StatusEmpty, nil)
	}
	return Continue(StageGeometricFilter)
}

func (p *Pipeline) filterStage(st *state) Outcome {
	w, h := st.nuclear.Width, st.nuclear.Height
	kept, rej, err := roi.Filter(st.regions, roi.Measure(st.regions, w, h), roi.FilterParams{
		AreaMin:        p.cfg.AreaMin,
		AreaMax:        p.cfg.AreaMax,
		CircularityMax: p.cfg.Circularity,
		Width:          w,
		Height:         h,
	})
	if err != nil {
		return Stop(well.StatusEmpty, err)
	}

	st.regions = kept
	st.res.Rejections = rej
	p.observer.RecordRegions(provenance.StageFiltered, len(kept))
	if len(kept) == 0 {
		return Stop(well.StatusNoTargetStageRegions, nil)
	}
	p.recordRegions(provenance.StageFiltered, st)
	return Continue(StageFeatureExtractInterior)
}

func (p *Pipeline) interiorStage(st *state) Outcome {
	st.interior = features.MeasureInterior(st.nuclear, st.reporter, st.regions)
	return Continue(StageFeatureExtractExterior)
}

func (p *Pipeline) exteriorStage(st *state) Outcome {
	exterior := features.MeasureExterior(st.nuclear, st.reporter, st.regions, p.cfg.BandWidth)

	rows := make([]features.Row, len(st.regions))
	for i, r := range st.regions {
		rows[i] = features.Row{Index: r.Index, Interior: st.interior[i], Exterior: exterior[i]}
	}
	st.table = features.Table{Rows: rows}

	path, err := p.recorder.FeatureTable(st.entry.Key, st.table)
	if err != nil {
		GetLogger().Warn("failed to persist feature table",
			logger.String("entry", st.entry.Key),
			logger.Error(err))
	} else {
		st.table.Path = path
	}
	return Continue(StageStageGateClassify)
}

func (p *Pipeline) stageGate(ctx context.Context, st *state) Outcome {
	if p.cfg.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
		defer cancel()
	}

	cascade := classify.Cascade{
		Classifier: observedClassifier{inner: p.classifier, observer: p.observer},
		Margin:     p.cfg.Margin,
	}
	res := cascade.Run(ctx, st.regions, st.table)
	if res.Status != well.StatusNormal {
		return Stop(res.Status, res.Err)
	}

	st.cascade = res
	st.regions = res.Regions
	st.res.TotalTargetStage = len(res.Regions)
	p.observer.RecordRegions(provenance.StageFinal, len(res.Regions))
	return Continue(StageLocalizationClassify)
}

func (p *Pipeline) localize(st *state) Outcome {
	st.res.Counts = st.cascade.Counts
	st.res.EnrichedRatio, st.res.DepletedRatio, st.res.IntermediateRatio =
		st.cascade.Counts.Ratios(st.res.TotalTargetStage)

	p.recordRegions(provenance.StageFinal, st)
	if _, err := p.recorder.Localization(st.entry.Key, st.cascade.Points); err != nil {
		GetLogger().Warn("failed to persist localization points",
			logger.String("entry", st.entry.Key),
			logger.Error(err))
	}
	return Continue(StageDone)
}

func (p *Pipeline) recordRegions(stage string, st *state) {
	if _, err := p.recorder.RegionSet(stage, st.entry.Key, st.regions); err != nil {
		GetLogger().Warn("failed to persist region set",
			logger.String("entry", st.entry.Key),
			logger.String("stage", stage),
			logger.Error(err))
	}
}

// state carries the data flowing between stages of one entry
type state struct {
	entry    *well.Entry
	nuclear  *imaging.Plane
	reporter *imaging.Plane
	prepared *imaging.Plane
	regions  []roi.Region
	interior []features.Interior
	table    features.Table
	cascade  classify.Result
	res      Result
}

// observedClassifier times stage classifier calls
type observedClassifier struct {
	inner    classify.StageClassifier
	observer Observer
}

func (c observedClassifier) Classify(ctx context.Context, table features.Table) ([]int, error) {
	start := time.Now()
	labels, err := c.inner.Classify(ctx, table)
	c.observer.RecordCollaborator("classifier", collaboratorStatus(err), time.Since(start))
	return labels, err
}

func collaboratorStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.IsCategory(err, errors.CategoryTimeout), errors.Is(err, context.DeadlineExceeded):
		return metrics.StatusTimeout
	default:
		return metrics.StatusError
	}
}

type nopRecorder struct{}

func (nopRecorder) RegionSet(string, string, []roi.Region) (string, error) { return "", nil }
func (nopRecorder) FeatureTable(string, features.Table) (string, error)    { return "", nil }
func (nopRecorder) Localization(string, []classify.Point) (string, error)  { return "", nil }

type nopObserver struct{}

func (nopObserver) RecordEntry(string, time.Duration)                { /* noop */ }
func (nopObserver) RecordRegions(string, int)                        { /* noop */ }
func (nopObserver) RecordCollaborator(string, string, time.Duration) { /* noop */ }

// GetLogger returns the pipeline module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}
