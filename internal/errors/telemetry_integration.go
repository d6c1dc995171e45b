package errors

import (
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/8gabri8/TST-bioimage/internal/privacy"
)

// SentryReporter sends enhanced errors to the Sentry hub with URLs scrubbed
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool { return sr.enabled }

// ReportError captures ee once. Events are grouped by title, component and
// category; context values become Sentry contexts.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	title := errorTitle(ee)
	message := privacy.ScrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	level := sentryLevel(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = privacy.ScrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// errorTitle reads like "segmentation: run stardist" from the category and
// the operation context
func errorTitle(ee *EnhancedError) string {
	title := string(ee.Category)
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		title += ": " + strings.ReplaceAll(op, "_", " ")
	}
	return title
}

// sentryLevel downgrades the transient sink and I/O failures to warnings
func sentryLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish,
		CategoryNotification, CategoryFileIO, CategoryTimeout:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}
