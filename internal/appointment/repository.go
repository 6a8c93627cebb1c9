package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/civil"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConflict is the store-level signal that an insert or move lost
	// the race for an interval: exclusion-constraint violation or
	// serialization failure.
	ErrConflict = errors.New("appointment conflicts with an existing booking")

	// ErrStaleStatus is returned by CAS status updates when the row exists
	// but no longer holds the expected status.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// Repository contains all DB interactions needed by the scheduling core.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListActiveByDoctorDate returns the non-terminal appointments for one
	// doctor's day, ordered by start time. Feeds the slot resolver and
	// nothing else; the booking path re-checks inside its own transaction.
	ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]Appointment, error)

	// CreateIfFree inserts the appointment in pending status inside one
	// transaction that re-verifies no non-terminal appointment overlaps
	// the interval. Returns ErrConflict if the interval is taken.
	CreateIfFree(ctx context.Context, a *Appointment) (*Appointment, error)

	// MoveIfFree reschedules an appointment to a new interval under the
	// same overlap guard, ignoring the appointment's own row.
	MoveIfFree(ctx context.Context, id uuid.UUID, date civil.Date, start, end civil.TimeOfDay) (*Appointment, error)

	// UpdateStatus applies from -> to as a compare-and-swap, bumping
	// update_count and updated_at. notes, when non-nil, replaces the notes
	// column in the same write. Returns ErrStaleStatus if the row no
	// longer holds from, ErrAppointmentNotFound if it does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, notes *string) (*Appointment, error)

	// FindElapsedConfirmed returns confirmed appointments whose scheduled
	// end is at or before now, for the reconciliation sweeper.
	FindElapsedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)
}
