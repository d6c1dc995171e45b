// Package notify publishes run results to external systems: one MQTT message
// per analyzed entry and a summary notification per run.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// EntryEvent is the MQTT payload describing one analyzed entry
type EntryEvent struct {
	RunID             string    `json:"run_id"`
	Well              string    `json:"well"`
	Key               string    `json:"entry"`
	FoV               int       `json:"fov"`
	Status            string    `json:"status"`
	Comment           string    `json:"comment"`
	TotalNuclei       int       `json:"total_nuclei"`
	TotalTargetStage  int       `json:"total_nuclei_metaphase"`
	TotalEnriched     int       `json:"total_enriched"`
	TotalDepleted     int       `json:"total_depleted"`
	TotalIntermediate int       `json:"total_intermediate"`
	EnrichedRatio     float64   `json:"enriched_ratio"`
	DepletedRatio     float64   `json:"depleted_ratio"`
	IntermediateRatio float64   `json:"intermediate_ratio"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewEntryEvent describes an analyzed entry of a well
func NewEntryEvent(runID string, w *well.Well, e *well.Entry, ts time.Time) EntryEvent {
	return EntryEvent{
		RunID:             runID,
		Well:              w.Name,
		Key:               e.Key,
		FoV:               e.FoV,
		Status:            e.Status.String(),
		Comment:           e.Status.Comment(),
		TotalNuclei:       e.TotalNuclei,
		TotalTargetStage:  e.TotalTargetStage,
		TotalEnriched:     e.TotalEnriched,
		TotalDepleted:     e.TotalDepleted,
		TotalIntermediate: e.TotalIntermediate,
		EnrichedRatio:     e.EnrichedRatio,
		DepletedRatio:     e.DepletedRatio,
		IntermediateRatio: e.IntermediateRatio,
		Timestamp:         ts,
	}
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID      string
	DataDir    string
	ResultsDir string
	Wells      int
	Entries    int            // processed entries
	Statuses   map[string]int // processed entries per status
	Cancelled  bool
	PlotStatus string
	Duration   time.Duration
}

// Title returns the notification title
func (s RunSummary) Title() string {
	if s.Cancelled {
		return "tf-analyzer run cancelled"
	}
	return "tf-analyzer run finished"
}

// Message returns the notification body
func (s RunSummary) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s analyzed %d entries in %d wells in %s.\n",
		s.RunID, s.Entries, s.Wells, s.Duration.Round(time.Second))

	statuses := make([]string, 0, len(s.Statuses))
	for k := range s.Statuses {
		statuses = append(statuses, k)
	}
	sort.Strings(statuses)
	for _, k := range statuses {
		fmt.Fprintf(&b, "%s: %d\n", k, s.Statuses[k])
	}
	if s.PlotStatus != "" {
		fmt.Fprintf(&b, "Plots: %s\n", s.PlotStatus)
	}
	fmt.Fprintf(&b, "Results: %s", s.ResultsDir)
	return b.String()
}

// EntryPublisher receives one event per analyzed entry
type EntryPublisher interface {
	PublishEntry(ctx context.Context, ev EntryEvent) error
}

// RunNotifier receives the summary of a run
type RunNotifier interface {
	NotifyRun(ctx context.Context, s RunSummary) error
}

// GetLogger returns the notify module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}
