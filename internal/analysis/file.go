package analysis

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/imaging"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/notify"
	"github.com/8gabri8/TST-bioimage/internal/pipeline"
	"github.com/8gabri8/TST-bioimage/internal/provenance"
	"github.com/8gabri8/TST-bioimage/internal/report"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Console output formats of a single pair analysis
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// FileAnalysis analyzes one nuclear/reporter image pair outside the data
// directory layout and prints the result to w in settings.Output.Format.
// Artifacts are kept only when settings.Output.Path is set.
func FileAnalysis(ctx context.Context, settings *conf.Settings, nuclearPath, reporterPath string, w io.Writer, opts ...Option) (*well.Entry, error) {
	runID := uuid.NewString()
	ctx = logger.WithTraceID(ctx, runID)
	log := GetLogger().WithContext(ctx)

	o := newOptions(opts)
	fs := o.fs

	workDir, err := afero.TempDir(fs, "", "tfa-file-")
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create_work_dir").
			Build()
	}
	defer func() {
		if err := fs.RemoveAll(workDir); err != nil {
			log.Warn("failed to remove work directory", logger.String("path", workDir), logger.Error(err))
		}
	}()

	if err := o.resolve(settings, workDir); err != nil {
		return nil, err
	}

	e := pairEntry(nuclearPath, reporterPath)

	var popts []pipeline.Option
	if settings.Output.Path != "" {
		if err := fs.MkdirAll(settings.Output.Path, 0o755); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryFileIO).
				Context("operation", "create_output_dir").
				Context("path", settings.Output.Path).
				Build()
		}
		popts = append(popts, pipeline.WithRecorder(provenance.NewWriter(fs, workDir, settings.Output.Path)))
	}

	p := pipeline.New(pipelineConfig(settings), imaging.NewLoader(fs, 0),
		o.preprocessor, o.segmenter, o.classifier, popts...)
	res := p.Run(ctx, e)
	if res.Status == well.StatusPending {
		return nil, errors.New(res.Err).
			Category(errors.CategoryCancellation).
			Context("entry", e.Key).
			Build()
	}
	res.Apply(e)

	if err := printEntry(w, settings.Output.Format, runID, e); err != nil {
		return e, err
	}
	return e, nil
}

// pairEntry builds the entry of an image pair, keyed like the indexer keys
// entries when the nuclear file name follows the export naming.
func pairEntry(nuclearPath, reporterPath string) *well.Entry {
	e := &well.Entry{NuclearPath: nuclearPath, ReporterPath: reporterPath}
	base := filepath.Base(nuclearPath)
	if fn, ok := well.ParseFileName(base); ok {
		e.Key, e.Letter, e.Number, e.FoV = fn.Key, fn.Letter, fn.Number, fn.FoV
		return e
	}
	e.Key = strings.TrimSuffix(base, filepath.Ext(base))
	return e
}

func printEntry(w io.Writer, format, runID string, e *well.Entry) error {
	if w == nil {
		w = os.Stdout
	}
	switch format {
	case FormatJSON:
		dir := filepath.Base(filepath.Dir(e.NuclearPath))
		ev := notify.NewEntryEvent(runID, well.New(dir, filepath.Dir(e.NuclearPath)), e, time.Now())
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ev); err != nil {
			return errors.New(err).Category(errors.CategoryReport).Build()
		}
		return nil
	case FormatTable, "":
		return report.WriteEntryTable(w, e)
	default:
		return errors.Newf("unknown output format %q", format).
			Category(errors.CategoryValidation).
			Build()
	}
}
