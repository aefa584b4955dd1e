package schedule

import (
	"sort"
	"time"

	"siteplan/internal/domain"
)

// Booking is one committed interval [Start, End) on a resource.
type Booking struct {
	TaskID     string
	Start      time.Time
	End        time.Time
	Allocation int // percentage, 100 = fully dedicated
}

// Overlap is a pair of bookings on the same resource whose intervals
// intersect. Candidate resource-overallocation conflict.
type Overlap struct {
	ResourceID string
	First      Booking
	Second     Booking
}

// Ledger tracks booked intervals per resource. It is rebuilt fresh for each
// engine invocation and never shared across calls.
type Ledger struct {
	byResource map[string][]Booking
}

// NewLedger builds a ledger from assignment rows. Rows with unparseable
// interval bounds are skipped.
func NewLedger(assignments []domain.ResourceAssignment) *Ledger {
	l := &Ledger{byResource: make(map[string][]Booking)}
	for _, a := range assignments {
		start, err1 := time.Parse(time.RFC3339, a.Start)
		end, err2 := time.Parse(time.RFC3339, a.End)
		if err1 != nil || err2 != nil {
			continue
		}
		l.Book(a.ResourceID, Booking{
			TaskID:     a.TaskID,
			Start:      start,
			End:        end,
			Allocation: a.AllocationPercentage,
		})
	}
	return l
}

// Book records an interval against a resource.
func (l *Ledger) Book(resourceID string, b Booking) {
	if b.Allocation <= 0 {
		b.Allocation = 100
	}
	l.byResource[resourceID] = append(l.byResource[resourceID], b)
}

// Bookings returns the resource's intervals sorted by start, ties broken by
// task id so repeated scans see the same order.
func (l *Ledger) Bookings(resourceID string) []Booking {
	bookings := append([]Booking(nil), l.byResource[resourceID]...)
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].Start.Equal(bookings[j].Start) {
			return bookings[i].Start.Before(bookings[j].Start)
		}
		return bookings[i].TaskID < bookings[j].TaskID
	})
	return bookings
}

// LatestEnd returns the latest booking end across the given resources, or the
// zero time if none are booked.
func (l *Ledger) LatestEnd(resourceIDs []string) time.Time {
	var latest time.Time
	for _, id := range resourceIDs {
		for _, b := range l.byResource[id] {
			if b.End.After(latest) {
				latest = b.End
			}
		}
	}
	return latest
}

// ResourceIDs returns every resource with at least one booking.
func (l *Ledger) ResourceIDs() []string {
	ids := make([]string, 0, len(l.byResource))
	for id := range l.byResource {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Overlaps reports every unordered pair of bookings on the resource whose
// intervals intersect. With bookings sorted by start, i<j overlap exactly
// when end_i > start_j.
func (l *Ledger) Overlaps(resourceID string) []Overlap {
	bookings := l.Bookings(resourceID)
	var out []Overlap
	for i := 0; i < len(bookings)-1; i++ {
		for j := i + 1; j < len(bookings); j++ {
			if bookings[i].End.After(bookings[j].Start) {
				out = append(out, Overlap{ResourceID: resourceID, First: bookings[i], Second: bookings[j]})
			}
		}
	}
	return out
}

// workingHoursFraction scales elapsed wall-clock time down to schedulable
// time (8 of 24 hours).
const workingHoursFraction = 8.0 / 24.0

// Utilization returns the resource's booked share of the project window as a
// percentage in [0, 100]. Each booking contributes its duration weighted by
// allocation percentage, clipped to the window; the denominator is the
// elapsed window scaled by the working-hours fraction.
func (l *Ledger) Utilization(resourceID string, windowStart, windowEnd time.Time) float64 {
	window := windowEnd.Sub(windowStart)
	if window <= 0 {
		return 0
	}
	var booked float64
	for _, b := range l.byResource[resourceID] {
		start, end := b.Start, b.End
		if start.Before(windowStart) {
			start = windowStart
		}
		if end.After(windowEnd) {
			end = windowEnd
		}
		if !end.After(start) {
			continue
		}
		booked += end.Sub(start).Seconds() * float64(b.Allocation) / 100
	}
	available := window.Seconds() * workingHoursFraction
	pct := booked / available * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
