package classify

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/runner"
)

// RandomForest runs the python random forest script:
//
//	<python> <script> <feature_csv> <model>
//
// and reads one label per line from its stdout.
type RandomForest struct {
	Python  string
	Script  string
	Model   string
	WorkDir string // feature tables without a Path are written here
	Timeout time.Duration
}

// Classify invokes the script on the table's CSV
func (rf *RandomForest) Classify(ctx context.Context, table features.Table) ([]int, error) {
	csvPath := table.Path
	if csvPath == "" {
		path, err := rf.writeTable(table)
		if err != nil {
			return nil, err
		}
		defer os.Remove(path)
		csvPath = path
	}

	res, err := runner.Run(ctx, runner.Command{
		Name:    "classifier",
		Path:    rf.Python,
		Args:    []string{rf.Script, csvPath, rf.Model},
		Timeout: rf.Timeout,
	})
	if err != nil {
		category := errors.CategoryClassification
		if errors.IsCategory(err, errors.CategoryTimeout) {
			category = errors.CategoryTimeout
		}
		return nil, errors.New(err).
			Category(category).
			Context("operation", "run_classifier").
			Context("table", csvPath).
			Build()
	}

	labels, err := ParseLabels(res.Stdout)
	if err != nil {
		return nil, err
	}

	GetLogger().Debug("stage classifier finished",
		logger.Int("rows", table.Len()),
		logger.Int("labels", len(labels)),
		logger.Duration("duration", res.Duration))

	return labels, nil
}

func (rf *RandomForest) writeTable(table features.Table) (string, error) {
	path := filepath.Join(rf.WorkDir, "features_"+uuid.NewString()+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_feature_table").
			Context("path", path).
			Build()
	}
	if err := table.WriteCSV(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_feature_table").
			Build()
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.New(err).Category(errors.CategoryFileIO).Build()
	}
	return path, nil
}
