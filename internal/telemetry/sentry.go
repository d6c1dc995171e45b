// Package telemetry provides opt-in, privacy filtered error reporting to Sentry.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/privacy"
)

var initialized atomic.Bool

// InitSentry initializes the Sentry SDK when enabled in settings and routes
// enhanced errors to it. A disabled setting is not an error.
func InitSentry(settings *conf.Settings, version string) error {
	return initSentry(settings, version, nil)
}

func initSentry(settings *conf.Settings, version string, transport sentry.Transport) error {
	log := GetLogger()
	if !settings.Sentry.Enabled {
		log.Debug("sentry telemetry is disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Debug:            settings.Sentry.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "tf-analyzer@" + version,
		BeforeSend:       beforeSend,
		Transport:        transport,
	})
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)
	log.Info("sentry telemetry enabled", logger.String("release", "tf-analyzer@"+version))
	return nil
}

// beforeSend drops host identifying data and scrubs URLs from messages
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Flush waits up to timeout for buffered events to be sent
func Flush(timeout time.Duration) bool {
	if !initialized.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
