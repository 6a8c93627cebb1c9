// Package slot derives bookable candidate intervals from declared
// availability windows and the intervals already held by live appointments.
// Everything here is pure; freshness at booking time is the booking
// coordinator's problem, not the resolver's.
package slot

import (
	"iter"
	"sort"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/civil"
)

// Slot is a derived, unoccupied candidate interval. It is never persisted
// and is recomputed on demand.
type Slot struct {
	DoctorID uuid.UUID       `json:"doctor_id"`
	Date     civil.Date      `json:"date"`
	Start    civil.TimeOfDay `json:"start"`
	End      civil.TimeOfDay `json:"end"`
}

func (s Slot) Interval() civil.Interval {
	return civil.Interval{Start: s.Start, End: s.End}
}

// Resolve yields chronological candidate slots: for each window, the busy
// intervals are subtracted and the free remainder is cut into
// granularityMin-sized slots, dropping any tail shorter than the
// granularity. granularityMin <= 0 yields the raw free remainders instead.
// The sequence is lazy and restartable; iterating it twice yields the same
// slots.
func Resolve(doctorID uuid.UUID, date civil.Date, windows []availability.Window, busy []civil.Interval, granularityMin int) iter.Seq[Slot] {
	ordered := normalize(windows, busy)

	return func(yield func(Slot) bool) {
		for _, w := range ordered.windows {
			for free := range subtract(w, ordered.busy) {
				if !emit(doctorID, date, free, granularityMin, yield) {
					return
				}
			}
		}
	}
}

// Collect drains a slot sequence into a slice. Handy at API edges; the
// lazy form is the primary contract.
func Collect(seq iter.Seq[Slot]) []Slot {
	var out []Slot
	for s := range seq {
		out = append(out, s)
	}
	return out
}

type normalized struct {
	windows []civil.Interval
	busy    []civil.Interval
}

// normalize sorts windows chronologically and merges busy intervals into a
// sorted union so subtraction can walk them with a single cursor. Declared
// windows are pairwise disjoint by the availability store's validation, so
// sorting alone fixes their order.
func normalize(windows []availability.Window, busy []civil.Interval) normalized {
	ws := make([]civil.Interval, 0, len(windows))
	for _, w := range windows {
		ws = append(ws, w.Interval())
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })

	bs := make([]civil.Interval, 0, len(busy))
	for _, b := range busy {
		if b.Valid() {
			bs = append(bs, b)
		}
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i].Start < bs[j].Start })

	merged := bs[:0]
	for _, b := range bs {
		if n := len(merged); n > 0 && b.Start <= merged[n-1].End {
			if b.End > merged[n-1].End {
				merged[n-1].End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}

	return normalized{windows: ws, busy: merged}
}

// subtract yields the free sub-intervals of window not covered by the
// sorted, disjoint busy union.
func subtract(window civil.Interval, busy []civil.Interval) iter.Seq[civil.Interval] {
	return func(yield func(civil.Interval) bool) {
		cursor := window.Start
		for _, b := range busy {
			if b.End <= cursor {
				continue
			}
			if b.Start >= window.End {
				break
			}
			if b.Start > cursor {
				if !yield(civil.Interval{Start: cursor, End: b.Start}) {
					return
				}
			}
			if b.End > cursor {
				cursor = b.End
			}
		}
		if cursor < window.End {
			yield(civil.Interval{Start: cursor, End: window.End})
		}
	}
}

func emit(doctorID uuid.UUID, date civil.Date, free civil.Interval, granularityMin int, yield func(Slot) bool) bool {
	if granularityMin <= 0 {
		return yield(Slot{DoctorID: doctorID, Date: date, Start: free.Start, End: free.End})
	}

	g := civil.TimeOfDay(granularityMin)
	for start := free.Start; start+g <= free.End; start += g {
		if !yield(Slot{DoctorID: doctorID, Date: date, Start: start, End: start + g}) {
			return false
		}
	}
	return true
}
