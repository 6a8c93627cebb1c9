package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/civil"
)

var ErrInvalidWindow = errors.New("invalid availability window")

// Window is one doctor-declared contiguous free span on a single date.
type Window struct {
	Start civil.TimeOfDay `json:"start"`
	End   civil.TimeOfDay `json:"end"`
}

func (w Window) Interval() civil.Interval {
	return civil.Interval{Start: w.Start, End: w.End}
}

// Day is a doctor's declared availability for one calendar date.
// Available=false keeps the stored windows but hides them from callers,
// so flipping the flag back restores the declaration unchanged.
type Day struct {
	DoctorID  uuid.UUID
	Date      civil.Date
	Windows   []Window
	Available bool
	UpdatedAt time.Time
}

// OpenWindows returns the bookable windows: nil when the day is closed.
func (d Day) OpenWindows() []Window {
	if !d.Available {
		return nil
	}
	return d.Windows
}

// WindowContaining reports whether some open window fully contains iv.
func (d Day) WindowContaining(iv civil.Interval) bool {
	for _, w := range d.OpenWindows() {
		if w.Interval().Contains(iv) {
			return true
		}
	}
	return false
}

// ValidateWindows checks each window's temporal ordering, pairwise
// non-overlap, and the per-day cap. Declared order is preserved; windows
// are only sorted into a scratch copy for the overlap scan.
func ValidateWindows(windows []Window, maxPerDay int) error {
	if maxPerDay > 0 && len(windows) > maxPerDay {
		return fmt.Errorf("%w: at most %d windows per day, got %d",
			ErrInvalidWindow, maxPerDay, len(windows))
	}

	for i, w := range windows {
		if !w.Interval().Valid() {
			return fmt.Errorf("%w: window %d (%s) start must precede end",
				ErrInvalidWindow, i+1, w.Interval())
		}
	}

	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return fmt.Errorf("%w: windows %s and %s overlap",
				ErrInvalidWindow, sorted[i-1].Interval(), sorted[i].Interval())
		}
	}

	return nil
}
