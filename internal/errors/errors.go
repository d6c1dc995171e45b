// Package errors wraps errors with a category, the reporting component and
// key/value context, and forwards them to an optional telemetry reporter.
//
//	return errors.New(err).
//		Category(errors.CategoryFileIO).
//		Context("path", path).
//		Build()
//
// The standard library helpers are re-exported so callers import one package.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for logs, exit codes and telemetry
type ErrorCategory string

const (
	CategoryGeneric          ErrorCategory = "generic"
	CategoryValidation       ErrorCategory = "validation"
	CategoryConfiguration    ErrorCategory = "configuration"
	CategoryFileIO           ErrorCategory = "file-io"
	CategoryFileParsing      ErrorCategory = "file-parsing"
	CategoryNotFound         ErrorCategory = "not-found"
	CategorySystem           ErrorCategory = "system-resource"
	CategoryCommandExecution ErrorCategory = "command-execution"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryCancellation     ErrorCategory = "cancellation"

	// Analysis stages
	CategoryIndexing        ErrorCategory = "indexing"
	CategoryImageProcessing ErrorCategory = "image-processing"
	CategorySegmentation    ErrorCategory = "segmentation"
	CategoryClassification  ErrorCategory = "classification"
	CategoryReport          ErrorCategory = "report"
	CategoryPlot            ErrorCategory = "plot"

	// Result sinks
	CategoryDatabase       ErrorCategory = "database"
	CategoryStorage        ErrorCategory = "storage"
	CategoryNetwork        ErrorCategory = "network"
	CategoryNotification   ErrorCategory = "notification"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
)

// ComponentUnknown is reported when no component was set
const ComponentUnknown = "unknown"

// EnhancedError is an error with its category, component and context
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Timestamp time.Time

	component string
	context   map[string]any
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// GetComponent returns the component that built the error
func (ee *EnhancedError) GetComponent() string {
	if ee.component == "" {
		return ComponentUnknown
	}
	return ee.component
}

// GetContext returns a copy of the context values
func (ee *EnhancedError) GetContext() map[string]any {
	return maps.Clone(ee.context)
}

// MarkReported records that telemetry has seen the error
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether telemetry has seen the error
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts an enhanced error around err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts an enhanced error from a format string
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build returns the error and hands it to the telemetry reporter, if one is
// installed. Without an explicit category one is inferred from the wrapped
// error.
func (eb *ErrorBuilder) Build() *EnhancedError {
	category := eb.category
	if category == "" {
		category = inferCategory(eb.err)
	}
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Timestamp: time.Now(),
		component: eb.component,
		context:   eb.context,
	}
	if reportingActive.Load() {
		report(ee)
	}
	return ee
}

// inferCategory keeps the category of a wrapped enhanced error, else
// recognizes context errors and falls back to generic.
func inferCategory(err error) ErrorCategory {
	var inner *EnhancedError
	switch {
	case err == nil:
		return CategoryGeneric
	case stderrors.As(err, &inner):
		return inner.Category
	case stderrors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case stderrors.Is(err, context.Canceled):
		return CategoryCancellation
	}
	return CategoryGeneric
}

// TelemetryReporter receives every built error while enabled
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reportingActive atomic.Bool
	reporterMu      sync.RWMutex
	reporter        TelemetryReporter
)

// SetTelemetryReporter installs r. Nil disables reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
	reportingActive.Store(r != nil && r.IsEnabled())
}

func report(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// IsCategory reports whether err wraps an EnhancedError of category
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
