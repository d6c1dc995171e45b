// Package well models the wells and field-of-view entries of a plate scan and
// builds them from the data directory layout.
package well

import (
	"fmt"
	"slices"
)

// Status is the terminal outcome of an entry analysis
type Status int

const (
	StatusPending Status = iota // not analyzed yet
	StatusNormal
	StatusTooNoisy
	StatusEmpty
	StatusNoTargetStageRegions
)

// String returns the short status name used in logs, metrics and the database
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusNormal:
		return "normal"
	case StatusTooNoisy:
		return "too_noisy"
	case StatusEmpty:
		return "empty"
	case StatusNoTargetStageRegions:
		return "no_target_stage_regions"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Comment returns the report comment describing the status
func (s Status) Comment() string {
	switch s {
	case StatusTooNoisy:
		return "The red or yellow channel of this entry was too noisy OR empty"
	case StatusNoTargetStageRegions:
		return "No mitosis was detected in this sample"
	case StatusEmpty:
		return "Image has no cells"
	default:
		return "Normal"
	}
}

// Entry is one field of view of a well: a nuclear and a reporter image plus
// the counters produced by its analysis.
type Entry struct {
	Key          string // Letter_Number_FOV
	Letter       string
	Number       int
	FoV          int
	NuclearPath  string // TexasRed channel
	ReporterPath string // YFP channel

	TotalNuclei       int // raw segmentation count
	TotalTargetStage  int // regions kept by the stage classifier
	TotalEnriched     int
	TotalDepleted     int
	TotalIntermediate int

	EnrichedRatio     float64
	DepletedRatio     float64
	IntermediateRatio float64

	Status Status
}

// IsValid reports whether both channel paths are set
func (e *Entry) IsValid() bool {
	return e.NuclearPath != "" && e.ReporterPath != ""
}

// Processed reports whether the entry reached a terminal status
func (e *Entry) Processed() bool {
	return e.Status != StatusPending
}

// Well groups the entries found in one well directory
type Well struct {
	Label string // first character of the directory name
	Name  string // directory name
	Path  string

	// Partial is set when entries were dropped or the directory could not be read
	Partial     bool
	DroppedKeys []string

	keys    []string
	entries map[string]*Entry
}

// New returns an empty well for the directory name
func New(name, path string) *Well {
	label := ""
	if name != "" {
		label = name[:1]
	}
	return &Well{
		Label:   label,
		Name:    name,
		Path:    path,
		entries: make(map[string]*Entry),
	}
}

// Entry returns the entry stored under key
func (w *Well) Entry(key string) (*Entry, bool) {
	e, ok := w.entries[key]
	return e, ok
}

// Entries returns the entries in insertion order
func (w *Well) Entries() []*Entry {
	out := make([]*Entry, 0, len(w.keys))
	for _, k := range w.keys {
		out = append(out, w.entries[k])
	}
	return out
}

// Len returns the number of entries
func (w *Well) Len() int {
	return len(w.keys)
}

// getOrAdd returns the entry for key, creating it on first sight
func (w *Well) getOrAdd(key string, create func() *Entry) *Entry {
	if e, ok := w.entries[key]; ok {
		return e
	}
	e := create()
	w.entries[key] = e
	w.keys = append(w.keys, key)
	return e
}

// Add appends an entry, replacing any entry with the same key in place
func (w *Well) Add(e *Entry) {
	if _, ok := w.entries[e.Key]; !ok {
		w.keys = append(w.keys, e.Key)
	}
	w.entries[e.Key] = e
}

// finalize drops entries missing a channel and marks the well partial
func (w *Well) finalize() {
	kept := w.keys[:0]
	for _, k := range w.keys {
		if w.entries[k].IsValid() {
			kept = append(kept, k)
			continue
		}
		delete(w.entries, k)
		w.DroppedKeys = append(w.DroppedKeys, k)
		w.Partial = true
	}
	w.keys = kept
}

// Ordered returns the wells sorted by label. The sort is stable so wells
// sharing a label keep their discovery order.
func Ordered(wells []*Well) []*Well {
	out := slices.Clone(wells)
	slices.SortStableFunc(out, func(a, b *Well) int {
		switch {
		case a.Label < b.Label:
			return -1
		case a.Label > b.Label:
			return 1
		default:
			return 0
		}
	})
	return out
}
