package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/civil"
)

// Status is the closed set of appointment lifecycle states. Transitions go
// through CanTransition only; there is no path back into a terminal state
// and none back to pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusRejected:  true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusCompleted: true,
	},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether s -> to is a legal edge.
func (s Status) CanTransition(to Status) bool {
	return transitions[s][to]
}

// Role identifies who is acting on an appointment.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleSystem  Role = "system"
)

// Actor is the authenticated identity behind a call, supplied by the
// external identity layer.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// SystemActor is used by the reconciliation sweeper.
var SystemActor = Actor{Role: RoleSystem}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the durable booking record. Rows are never deleted; a
// booking only ever moves to a terminal status, preserving the audit trail.
type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	Date        civil.Date
	Start       civil.TimeOfDay
	End         civil.TimeOfDay
	Status      Status
	Reason      string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UpdateCount int
}

func (a *Appointment) Interval() civil.Interval {
	return civil.Interval{Start: a.Start, End: a.End}
}

// EndsBy reports whether the appointment's scheduled end has passed.
func (a *Appointment) EndsBy(now time.Time, loc *time.Location) bool {
	return !a.Date.At(a.End, loc).After(now)
}
