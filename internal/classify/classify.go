// Package classify implements the two stage region classification: an external
// stage gate keeping metaphase nuclei, then a margin rule on reporter intensity
// assigning a localization class.
package classify

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/features"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// StageClassifier returns one label per feature row, in row order. Label 0
// means the region is not in the target stage.
type StageClassifier interface {
	Classify(ctx context.Context, table features.Table) ([]int, error)
}

// Passthrough keeps every region. It stands in for the learned classifier when
// no model is available.
type Passthrough struct{}

// Classify labels every row 1
func (Passthrough) Classify(_ context.Context, table features.Table) ([]int, error) {
	labels := make([]int, table.Len())
	for i := range labels {
		labels[i] = 1
	}
	return labels, nil
}

// ParseLabels reads one label per non-empty line. Integral floats such as
// "1.0" are accepted since the classifier may print numpy floats.
func ParseLabels(out []byte) ([]int, error) {
	var labels []int
	sc := bufio.NewScanner(bytes.NewReader(out))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if n, err := strconv.Atoi(text); err == nil {
			labels = append(labels, n)
			continue
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, errors.Newf("invalid classifier label %q on line %d", text, line).
				Category(errors.CategoryClassification).
				Context("operation", "parse_labels").
				Build()
		}
		labels = append(labels, int(f))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryClassification).
			Context("operation", "parse_labels").
			Build()
	}
	return labels, nil
}

// GetLogger returns the classify module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("classify")
}
