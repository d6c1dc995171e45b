package pipeline

import (
	"time"

	"github.com/8gabri8/TST-bioimage/internal/classify"
	"github.com/8gabri8/TST-bioimage/internal/roi"
	"github.com/8gabri8/TST-bioimage/internal/well"
)

// Stage identifies a step of the entry pipeline
type Stage int

const (
	StageNoiseGate Stage = iota
	StagePreprocess
	StageSegment
	StageGeometricFilter
	StageFeatureExtractInterior
	StageFeatureExtractExterior
	StageStageGateClassify
	StageLocalizationClassify
	StageDone
)

var stageNames = [...]string{
	"noise_gate",
	"preprocess",
	"segment",
	"geometric_filter",
	"feature_extract_interior",
	"feature_extract_exterior",
	"stage_gate_classify",
	"localization_classify",
	"done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Outcome is what a stage returns: either the next stage to run or a
// terminal status, with the error that caused it if any.
type Outcome struct {
	Next   Stage
	Status well.Status // zero (StatusPending) while the entry continues
	Err    error
}

// Continue moves on to next
func Continue(next Stage) Outcome {
	return Outcome{Next: next}
}

// Stop ends the entry with status
func Stop(status well.Status, err error) Outcome {
	return Outcome{Next: StageDone, Status: status, Err: err}
}

func (o Outcome) terminal() bool {
	return o.Status != well.StatusPending
}

// Result is the outcome of one entry analysis
type Result struct {
	Key              string
	Status           well.Status
	Stage            Stage // stage that produced the status
	TotalNuclei      int
	TotalTargetStage int
	Counts           classify.Counts
	Rejections       roi.Rejections

	EnrichedRatio     float64
	DepletedRatio     float64
	IntermediateRatio float64

	Err      error
	Duration time.Duration
}

// Apply copies the counters and status onto the entry. Counters of a status
// other than StatusNormal are reset, except the raw nucleus count.
func (r Result) Apply(e *well.Entry) {
	e.Status = r.Status
	e.TotalNuclei = r.TotalNuclei
	if r.Status != well.StatusNormal {
		e.TotalTargetStage = 0
		e.TotalEnriched, e.TotalDepleted, e.TotalIntermediate = 0, 0, 0
		e.EnrichedRatio, e.DepletedRatio, e.IntermediateRatio = 0, 0, 0
		return
	}
	e.TotalTargetStage = r.TotalTargetStage
	e.TotalEnriched = r.Counts.Enriched
	e.TotalDepleted = r.Counts.Depleted
	e.TotalIntermediate = r.Counts.Intermediate
	e.EnrichedRatio = r.EnrichedRatio
	e.DepletedRatio = r.DepletedRatio
	e.IntermediateRatio = r.IntermediateRatio
}
