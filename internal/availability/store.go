package availability

import (
	"context"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/civil"
)

// Store holds each doctor's declared windows. Replacements are atomic per
// (doctor, date); the scheduling core only ever reads.
type Store interface {
	// Set validates and replaces the doctor's windows for the date.
	Set(ctx context.Context, doctorID uuid.UUID, date civil.Date, windows []Window, available bool) (*Day, error)

	// Get returns the declared day. A date with no declaration comes back
	// as a closed Day with no windows, not an error.
	Get(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Day, error)
}
