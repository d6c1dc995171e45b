package analysis

import (
	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/classify"
	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/imaging/opencv"
	"github.com/8gabri8/TST-bioimage/internal/pipeline"
	"github.com/8gabri8/TST-bioimage/internal/report"
	"github.com/8gabri8/TST-bioimage/internal/segment"
)

// Option replaces a collaborator of an analysis, mainly for tests and
// embedding.
type Option func(*options)

type options struct {
	fs           afero.Fs
	preprocessor imaging.Preprocessor
	segmenter    segment.Segmenter
	classifier   classify.StageClassifier
	plotter      report.PlotRenderer
}

// WithFs reads inputs and writes results through fs instead of the OS filesystem
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithPreprocessor replaces the OpenCV preprocessing chain
func WithPreprocessor(p imaging.Preprocessor) Option {
	return func(o *options) { o.preprocessor = p }
}

// WithSegmenter replaces the configured segmentation engine
func WithSegmenter(s segment.Segmenter) Option {
	return func(o *options) { o.segmenter = s }
}

// WithClassifier replaces the configured stage classifier
func WithClassifier(c classify.StageClassifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithPlotRenderer replaces the plot script
func WithPlotRenderer(r report.PlotRenderer) Option {
	return func(o *options) { o.plotter = r }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	return o
}

// resolve fills every collaborator not set by an option from settings.
// workDir receives the files exchanged with subprocess collaborators.
func (o *options) resolve(settings *conf.Settings, workDir string) error {
	if o.preprocessor == nil {
		o.preprocessor = opencv.Preprocessor{
			Sigma:       settings.Preprocess.Sigma,
			RollingBall: settings.Preprocess.RollingBall,
			Saturated:   settings.Preprocess.Saturated,
		}
	}
	if o.segmenter == nil {
		seg, err := newSegmenter(settings, workDir)
		if err != nil {
			return err
		}
		o.segmenter = seg
	}
	if o.classifier == nil {
		cls, err := newClassifier(settings, workDir)
		if err != nil {
			return err
		}
		o.classifier = cls
	}
	if o.plotter == nil {
		o.plotter = &report.ScriptRenderer{
			Python:  settings.PythonExecutable(),
			Script:  settings.PlotScript(),
			Timeout: settings.Plots.Timeout,
		}
	}
	return nil
}

func newSegmenter(settings *conf.Settings, workDir string) (segment.Segmenter, error) {
	switch settings.Segmentation.Engine {
	case conf.SegmenterStarDist, "":
		return &segment.StarDist{
			Python:      settings.PythonExecutable(),
			Script:      settings.SegmentScript(),
			Probability: settings.Segmentation.Probability,
			Overlap:     settings.Segmentation.Overlap,
			WorkDir:     workDir,
		}, nil
	case conf.SegmenterContour:
		return opencv.ContourSegmenter{}, nil
	default:
		return nil, errors.Newf("unknown segmentation engine %q", settings.Segmentation.Engine).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func newClassifier(settings *conf.Settings, workDir string) (classify.StageClassifier, error) {
	switch settings.Classify.Engine {
	case conf.ClassifierRandomForest, "":
		return &classify.RandomForest{
			Python:  settings.PythonExecutable(),
			Script:  settings.ClassifierScript(),
			Model:   settings.ClassifierModel(),
			WorkDir: workDir,
		}, nil
	case conf.ClassifierPassthrough:
		return classify.Passthrough{}, nil
	default:
		return nil, errors.Newf("unknown classifier engine %q", settings.Classify.Engine).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// pipelineConfig maps settings onto the entry pipeline thresholds. The
// collaborator timeouts are applied by the pipeline around each call.
func pipelineConfig(settings *conf.Settings) pipeline.Config {
	return pipeline.Config{
		NoiseStd:        settings.Filter.NoiseStd,
		AreaMin:         settings.Filter.AreaMin,
		AreaMax:         settings.Filter.AreaMax,
		Circularity:     settings.Filter.Circularity,
		BandWidth:       settings.Features.BandWidth,
		Margin:          settings.Classify.Margin,
		SegmentTimeout:  settings.Segmentation.Timeout,
		ClassifyTimeout: settings.Classify.Timeout,
	}
}
