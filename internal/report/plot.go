package report

import (
	"context"
	"time"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/runner"
)

// PlotStatus is the outcome of a plot rendering
type PlotStatus int

const (
	PlotFailed PlotStatus = iota
	PlotRendered
	PlotNoUsableData
)

func (s PlotStatus) String() string {
	switch s {
	case PlotRendered:
		return "rendered"
	case PlotNoUsableData:
		return "no_usable_data"
	default:
		return "failed"
	}
}

// exitNoUsableData is the plot script exit code for a report without Normal rows
const exitNoUsableData = 10

// PlotRenderer renders the figures of a report into outDir
type PlotRenderer interface {
	Render(ctx context.Context, reportPath, outDir string) (PlotStatus, error)
}

// ScriptRenderer runs the plotting script as
// <python> <script> <report.csv> <out_dir>
type ScriptRenderer struct {
	Python  string
	Script  string
	Timeout time.Duration
}

// Render runs the script and maps its exit code
func (r *ScriptRenderer) Render(ctx context.Context, reportPath, outDir string) (PlotStatus, error) {
	res, err := runner.Run(ctx, runner.Command{
		Name:    "plot",
		Path:    r.Python,
		Args:    []string{r.Script, reportPath, outDir},
		Timeout: r.Timeout,
	})
	if err == nil {
		GetLogger().Info("plots rendered",
			logger.String("report", reportPath),
			logger.String("out_dir", outDir),
			logger.Duration("duration", res.Duration))
		return PlotRendered, nil
	}
	if res != nil && res.ExitCode == exitNoUsableData {
		GetLogger().Warn("plot script found no usable wells", logger.String("report", reportPath))
		return PlotNoUsableData, nil
	}

	category := errors.CategoryPlot
	if errors.IsCategory(err, errors.CategoryTimeout) {
		category = errors.CategoryTimeout
	}
	return PlotFailed, errors.New(err).
		Category(category).
		Context("operation", "render_plots").
		Context("report", reportPath).
		Build()
}
