package analysis

import (
	"context"
	"net/url"
	"time"

	"github.com/spf13/afero"

	"github.com/8gabri8/TST-bioimage/internal/artifact"
	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/datastore"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/notify"
	"github.com/8gabri8/TST-bioimage/internal/observability/metrics"
	"github.com/8gabri8/TST-bioimage/internal/privacy"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Sink names used in logs and metrics
const (
	sinkDatastore = "datastore"
	sinkMirror    = "mirror"
	sinkMQTT      = "mqtt"
	sinkNotify    = "notify"
)

// tempDirName is the directory skipped when mirroring results
const tempDirName = "temp"

// entryPublisher is an EntryPublisher holding a connection
type entryPublisher interface {
	notify.EntryPublisher
	Disconnect()
}

// sinks are the optional result destinations of a run. A sink that fails to
// open is disabled for the run; sink failures never fail the run.
type sinks struct {
	store     *datastore.Store
	publisher entryPublisher
	notifier  notify.RunNotifier
	mirror    *artifact.Mirror
	metrics   *metrics.AnalysisMetrics // nil when metrics are disabled
}

// openSinks connects every sink enabled in settings
func openSinks(ctx context.Context, settings *conf.Settings, fs afero.Fs, m *metrics.AnalysisMetrics) *sinks {
	log := GetLogger().WithContext(ctx)
	s := &sinks{metrics: m}

	store, err := datastore.Open(settings)
	if err != nil {
		log.Warn("results database disabled for this run", logger.Error(err))
		s.record(sinkDatastore, err)
	} else {
		s.store = store
	}

	if settings.MQTT.Enabled {
		pub := notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:   settings.MQTT.Broker,
			ClientID: settings.MQTT.ClientID,
			Username: settings.MQTT.Username,
			Password: settings.MQTT.Password,
			Topic:    settings.MQTT.Topic,
			Timeout:  settings.MQTT.Timeout,
		})
		if err := pub.Connect(ctx); err != nil {
			log.Warn("mqtt publishing disabled for this run", logger.Error(err))
			s.record(sinkMQTT, err)
		} else {
			s.publisher = pub
		}
	}

	if settings.Notify.Enabled {
		n, err := notify.NewShoutrrrNotifier(settings.Notify.URLs, settings.Notify.Timeout)
		if err != nil {
			log.Warn("run notification disabled for this run", logger.Error(err))
			s.record(sinkNotify, err)
		} else {
			s.notifier = n
		}
	}

	if settings.Mirror.Enabled {
		store, err := newArtifactStore(ctx, settings, fs)
		if err != nil {
			log.Warn("artifact mirror disabled for this run", logger.Error(err))
			s.record(sinkMirror, err)
		} else {
			s.mirror = artifact.NewMirror(store, fs, settings.Mirror.Prefix, tempDirName)
		}
	}

	return s
}

// newArtifactStore returns a filesystem store for file:// endpoints and an
// S3 store otherwise.
func newArtifactStore(ctx context.Context, settings *conf.Settings, fs afero.Fs) (artifact.Store, error) {
	if u, err := url.Parse(settings.Mirror.Endpoint); err == nil && u.Scheme == "file" {
		return artifact.NewFsStore(fs, u.Path)
	}
	return artifact.NewS3Store(ctx, artifact.S3Config{
		Region:    settings.Mirror.Region,
		Bucket:    settings.Mirror.Bucket,
		Endpoint:  settings.Mirror.Endpoint,
		PathStyle: settings.Mirror.PathStyle,
	})
}

// publishEntry sends the result of one entry to the MQTT broker
func (s *sinks) publishEntry(ctx context.Context, runID string, w *well.Well, e *well.Entry) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishEntry(ctx, notify.NewEntryEvent(runID, w, e, time.Now()))
	if err != nil {
		GetLogger().Warn("failed to publish entry result",
			logger.String("entry", e.Key),
			logger.Error(err))
	}
	s.record(sinkMQTT, err)
}

// finish stores, mirrors and announces a completed run. It runs detached
// from the run context so a cancelled run still reaches its sinks.
func (s *sinks) finish(ctx context.Context, rr *RunReport) {
	ctx = context.WithoutCancel(ctx)
	log := GetLogger().WithContext(ctx)

	if s.store != nil {
		run := &datastore.Run{
			ID:         rr.RunID,
			StartedAt:  rr.StartedAt,
			FinishedAt: rr.FinishedAt,
			DataDir:    rr.DataDir,
			ResultsDir: rr.ResultsDir,
			Entries:    rr.Processed,
			Normal:     rr.Statuses[well.StatusNormal.String()],
			Cancelled:  rr.Cancelled,
		}
		err := s.store.SaveRun(ctx, run, datastore.FromWells(rr.RunID, rr.Wells))
		if err != nil {
			log.Warn("failed to save run to the results database", logger.Error(err))
		}
		s.record(sinkDatastore, err)
	}

	if s.mirror != nil {
		n, err := s.mirror.Upload(ctx, rr.RunID, rr.ResultsDir)
		if err != nil {
			log.Warn("failed to mirror results",
				logger.Int("uploaded", n),
				logger.Error(err))
		} else {
			log.Info("results mirrored", logger.Int("files", n))
		}
		s.record(sinkMirror, err)
	}

	if s.notifier != nil {
		err := s.notifier.NotifyRun(ctx, rr.Summary())
		if err != nil {
			log.Warn("failed to send run notification", logger.Error(privacy.WrapError(err)))
		}
		s.record(sinkNotify, err)
	}
}

func (s *sinks) record(sink string, err error) {
	if s.metrics != nil {
		s.metrics.RecordSink(sink, err)
	}
}

// close releases the database and broker connections
func (s *sinks) close() {
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			GetLogger().Warn("failed to close results database", logger.Error(err))
		}
	}
}
