package order

import "time"

// Filter selects orders. Zero-valued fields do not constrain the result.
type Filter struct {
	// Status matches the status field exactly.
	Status string
	// StatusPattern is a regular expression matched case-insensitively against status.
	StatusPattern string
	// CreatedFrom is an inclusive lower bound on createdAt.
	CreatedFrom time.Time
	// CreatedBefore is an exclusive upper bound on createdAt.
	CreatedBefore time.Time
}

// Query is a Filter plus whether line item references should be resolved.
type Query struct {
	Filter       Filter
	PopulateItem bool
}

// DayRange returns createdAt bounds covering the calendar days from..to in loc:
// from at 00:00:00.000 inclusive, to at 23:59:59.000 exclusive. Orders created in
// the final second of to fall outside the range.
func DayRange(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	lower := time.Date(fy, fm, fd, 0, 0, 0, 0, loc)
	upper := time.Date(ty, tm, td, 23, 59, 59, 0, loc)
	return lower, upper
}

func (f Filter) matchesCreated(t time.Time) bool {
	if !f.CreatedFrom.IsZero() && t.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !t.Before(f.CreatedBefore) {
		return false
	}
	return true
}
