package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(err *EnhancedError) {
	r.reported = append(r.reported, err)
	err.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestBuildWithoutReporter(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestBuilderCarriesContext(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("segmenter exited with %d", 3).
		Component("segmentation").
		Category(CategoryCommandExecution).
		Context("exit_code", 3).
		Build()

	assert.Equal(t, "segmentation", ee.GetComponent())
	ctx := ee.GetContext()
	assert.Equal(t, 3, ctx["exit_code"])

	// GetContext hands out a copy
	ctx["exit_code"] = 99
	assert.Equal(t, 3, ee.GetContext()["exit_code"])
}

func TestInferredCategories(t *testing.T) {
	SetTelemetryReporter(nil)

	deadline := New(fmt.Errorf("segment: %w", context.DeadlineExceeded)).Build()
	assert.Equal(t, CategoryTimeout, deadline.Category)

	cancelled := New(context.Canceled).Build()
	assert.Equal(t, CategoryCancellation, cancelled.Category)

	inner := New(NewStd("disk gone")).Category(CategoryStorage).Build()
	outer := New(fmt.Errorf("mirror: %w", inner)).Build()
	assert.Equal(t, CategoryStorage, outer.Category)
}

func TestReporterReceivesBuiltErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(context.DeadlineExceeded).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
}

func TestIsCategoryThroughWrapping(t *testing.T) {
	SetTelemetryReporter(nil)

	base := New(NewStd("no such file")).Category(CategoryFileIO).Build()
	wrapped := fmt.Errorf("loading plane: %w", base)

	assert.True(t, IsCategory(wrapped, CategoryFileIO))
	assert.False(t, IsCategory(wrapped, CategoryDatabase))
	assert.False(t, IsNotFound(wrapped))

	var ee *EnhancedError
	require.True(t, As(wrapped, &ee))
	assert.Same(t, base, ee)
}

func TestErrorTitle(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(NewStd("boom")).
		Category(CategoryClassification).
		Context("operation", "stage_a_gate").
		Build()

	assert.Equal(t, "classification: stage a gate", errorTitle(ee))
	assert.Equal(t, "classification", errorTitle(New(NewStd("x")).Category(CategoryClassification).Build()))
}
