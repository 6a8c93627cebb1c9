package availability

import (
	"errors"
	"testing"

	"github.com/careslot/scheduling/internal/civil"
)

func window(start, end civil.TimeOfDay) Window {
	return Window{Start: start, End: end}
}

func TestValidateWindows_Valid(t *testing.T) {
	err := ValidateWindows([]Window{
		window(9*60, 12*60),
		window(13*60, 17*60),
	}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateWindows_EmptyIsValid(t *testing.T) {
	if err := ValidateWindows(nil, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateWindows_Overlap(t *testing.T) {
	// 09:00-10:00 and 09:30-10:30 on the same date must be rejected.
	err := ValidateWindows([]Window{
		window(9*60, 10*60),
		window(9*60+30, 10*60+30),
	}, 3)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestValidateWindows_OverlapDetectedRegardlessOfOrder(t *testing.T) {
	err := ValidateWindows([]Window{
		window(13*60, 15*60),
		window(9*60, 14*60),
	}, 3)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestValidateWindows_AdjacentIsNotOverlap(t *testing.T) {
	err := ValidateWindows([]Window{
		window(9*60, 12*60),
		window(12*60, 15*60),
	}, 3)
	if err != nil {
		t.Fatalf("back-to-back windows should be allowed, got %v", err)
	}
}

func TestValidateWindows_Reversed(t *testing.T) {
	err := ValidateWindows([]Window{window(12*60, 9*60)}, 3)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestValidateWindows_Cap(t *testing.T) {
	windows := []Window{
		window(8*60, 9*60),
		window(10*60, 11*60),
		window(12*60, 13*60),
		window(14*60, 15*60),
	}

	if err := ValidateWindows(windows, 3); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected cap violation, got %v", err)
	}
	if err := ValidateWindows(windows, 4); err != nil {
		t.Fatalf("cap of 4 should accept four windows, got %v", err)
	}
	if err := ValidateWindows(windows, 0); err != nil {
		t.Fatalf("cap of 0 means uncapped, got %v", err)
	}
}

func TestValidateWindows_PreservesDeclaredOrder(t *testing.T) {
	windows := []Window{
		window(13*60, 17*60),
		window(9*60, 12*60),
	}

	if err := ValidateWindows(windows, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Validation must not reorder the caller's slice.
	if windows[0].Start != 13*60 || windows[1].Start != 9*60 {
		t.Fatalf("declared order was mutated: %+v", windows)
	}
}

func TestDayOpenWindows(t *testing.T) {
	day := Day{
		Windows:   []Window{window(9*60, 12*60)},
		Available: true,
	}
	if len(day.OpenWindows()) != 1 {
		t.Fatal("available day should expose its windows")
	}

	day.Available = false
	if day.OpenWindows() != nil {
		t.Fatal("closed day must behave as zero windows")
	}
}

func TestDayWindowContaining(t *testing.T) {
	day := Day{
		Windows:   []Window{window(9*60, 12*60), window(13*60, 17*60)},
		Available: true,
	}

	if !day.WindowContaining(civil.Interval{Start: 9 * 60, End: 9*60 + 30}) {
		t.Fatal("interval inside the first window should be contained")
	}
	if day.WindowContaining(civil.Interval{Start: 11*60 + 45, End: 13*60 + 15}) {
		t.Fatal("interval spanning the gap between windows is not contained")
	}

	day.Available = false
	if day.WindowContaining(civil.Interval{Start: 9 * 60, End: 9*60 + 30}) {
		t.Fatal("closed day contains nothing")
	}
}
