// README: Temporal conflict detection for passengers and drivers.
package trip

import (
	"time"

	"tripshare/internal/types"
)

// Window is the span a trip occupies. A zero End means unknown.
type Window struct {
	TripID types.ID
	Start  time.Time
	End    time.Time
}

// DetectConflict reports the first existing window the proposed one clashes
// with: starts closer than buffer, or overlapping intervals. An existing
// window without an end is taken to last buffer.
func DetectConflict(proposed Window, existing []Window, buffer time.Duration) (Window, bool) {
	pEnd := proposed.End
	if pEnd.IsZero() || !pEnd.After(proposed.Start) {
		pEnd = proposed.Start.Add(buffer)
	}
	for _, e := range existing {
		if e.TripID != "" && e.TripID == proposed.TripID {
			continue
		}
		if absDuration(proposed.Start.Sub(e.Start)) < buffer {
			return e, true
		}
		eEnd := e.End
		if eEnd.IsZero() {
			eEnd = e.Start.Add(buffer)
		}
		if proposed.Start.Before(eEnd) && e.Start.Before(pEnd) {
			return e, true
		}
	}
	return Window{}, false
}

// DetectDriverConflict flags an assigned, unpaid trip starting within buffer
// of start.
func DetectDriverConflict(start time.Time, assigned []*Trip, buffer time.Duration) (*Trip, bool) {
	for _, t := range assigned {
		if t.Status != StatusAssigned || t.IsPaid {
			continue
		}
		if absDuration(t.StartTime.Sub(start)) <= buffer {
			return t, true
		}
	}
	return nil, false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
