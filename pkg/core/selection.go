// pkg/core/selection.go
package core

import "time"

// SplitMode is the dashboard's split-screen layout.
type SplitMode string

const (
	SplitSingle     SplitMode = "single"
	SplitHorizontal SplitMode = "horizontal"
	SplitVertical   SplitMode = "vertical"
	SplitQuad       SplitMode = "quad"
)

// ValidSplitMode reports whether m is one of the known layouts.
func ValidSplitMode(m SplitMode) bool {
	switch m {
	case SplitSingle, SplitHorizontal, SplitVertical, SplitQuad:
		return true
	}
	return false
}

// DateRange is a closed interval of instants, Start <= End.
// Comparisons use a one second tolerance to absorb serialization rounding.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RangeTolerance absorbs the sub-second precision lost in round-trips
// through the persisted store.
const RangeTolerance = time.Second

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Valid reports whether the range is set and ordered.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Equal reports whether both ends match within RangeTolerance.
func (r DateRange) Equal(other DateRange) bool {
	return withinTolerance(r.Start, other.Start) && withinTolerance(r.End, other.End)
}

func withinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= RangeTolerance
}

// SelectionState is the shared cross-view state. The two last-update
// timestamps exist solely so the store can tell its own writes apart
// from another writer's when they echo back through a second channel.
type SelectionState struct {
	Vehicle           *Vehicle  `json:"vehicle"`
	DateRange         *DateRange `json:"dateRange"`
	SplitMode         SplitMode `json:"splitMode"`
	LastVehicleUpdate time.Time `json:"lastVehicleUpdate"`
	LastDateUpdate    time.Time `json:"lastDateUpdate"`
}
