// Package schedule computes meeting slots from calendar free/busy data.
package schedule

import "time"

// Interval is a busy period. Zero-length intervals are valid and contribute
// no delay to the scan.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Window bounds a free-slot search. An inverted window (Start after End)
// yields no slot rather than an error.
type Window struct {
	Start time.Time
	End   time.Time
}

// Slot is a free period of exactly the requested duration.
type Slot struct {
	Start time.Time
	End   time.Time
}

// FindFreeSlot returns the earliest gap of at least d within window, given
// busy intervals in ascending start order. First-fit: the earliest
// sufficient gap wins even if a later gap fits tighter.
//
// The cursor only ever moves forward, so overlapping or out-of-order busy
// intervals are absorbed instead of rejected. Callers are expected to
// validate d > 0 and parse timestamps before calling; this function never
// fails, it only reports not-found (ok == false).
func FindFreeSlot(busy []Interval, window Window, d time.Duration) (Slot, bool) {
	cursor := window.Start
	for _, iv := range busy {
		// A gap is only usable up to the window end.
		gapEnd := iv.Start
		if gapEnd.After(window.End) {
			gapEnd = window.End
		}
		if gapEnd.Sub(cursor) >= d {
			return Slot{Start: cursor, End: cursor.Add(d)}, true
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if window.End.Sub(cursor) >= d {
		return Slot{Start: cursor, End: cursor.Add(d)}, true
	}
	return Slot{}, false
}

// Result is the JSON shape returned to tool callers. SlotStart and SlotEnd
// are null when no slot was found; TimeZone is passed through from the
// request unchanged and plays no part in the arithmetic.
type Result struct {
	SlotStart *time.Time `json:"slotStart"`
	SlotEnd   *time.Time `json:"slotEnd"`
	TimeZone  string     `json:"timeZone,omitempty"`
}

// ResultFor wraps a FindFreeSlot outcome for serialization.
func ResultFor(slot Slot, ok bool, timeZone string) Result {
	if !ok {
		return Result{TimeZone: timeZone}
	}
	start := slot.Start
	end := slot.End
	return Result{SlotStart: &start, SlotEnd: &end, TimeZone: timeZone}
}
