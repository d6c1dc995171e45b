// model.go defines the persisted records of analysis runs
package datastore

import (
	"time"

	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Run is one batch analysis of a data directory
type Run struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	StartedAt  time.Time `gorm:"index:idx_runs_started_at"`
	FinishedAt time.Time
	DataDir    string
	ResultsDir string
	Entries    int // processed entries
	Normal     int // entries with a Normal status
	// Cancelled is set when the run was interrupted before every entry was processed
	Cancelled bool
	Results   []EntryResult `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// EntryResult is the report row of one entry
type EntryResult struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"index:idx_entry_results_run;type:varchar(36);not null"`
	Well  string `gorm:"index:idx_entry_results_well"`
	Key   string `gorm:"column:entry_key;type:varchar(64)"`
	FoV   int

	TotalNuclei       int
	TotalTargetStage  int
	TotalEnriched     int
	TotalDepleted     int
	TotalIntermediate int

	EnrichedRatio     float64
	DepletedRatio     float64
	IntermediateRatio float64

	Status  string `gorm:"type:varchar(32);index:idx_entry_results_status"`
	Comment string
}

// FromEntry converts an analyzed entry of a well into a record
func FromEntry(runID string, w *well.Well, e *well.Entry) EntryResult {
	return EntryResult{
		RunID:             runID,
		Well:              w.Name,
		Key:               e.Key,
		FoV:               e.FoV,
		TotalNuclei:       e.TotalNuclei,
		TotalTargetStage:  e.TotalTargetStage,
		TotalEnriched:     e.TotalEnriched,
		TotalDepleted:     e.TotalDepleted,
		TotalIntermediate: e.TotalIntermediate,
		EnrichedRatio:     e.EnrichedRatio,
		DepletedRatio:     e.DepletedRatio,
		IntermediateRatio: e.IntermediateRatio,
		Status:            e.Status.String(),
		Comment:           e.Status.Comment(),
	}
}

// FromWells converts the processed entries of wells in report order
func FromWells(runID string, wells []*well.Well) []EntryResult {
	var out []EntryResult
	for _, w := range well.Ordered(wells) {
		for _, e := range w.Entries() {
			if e.Processed() {
				out = append(out, FromEntry(runID, w, e))
			}
		}
	}
	return out
}
