package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/civil"
)

// Event is one appointment state change fanned out to the live sessions of
// the affected doctor and patient.
type Event struct {
	AppointmentID uuid.UUID       `json:"appointment_id"`
	DoctorID      uuid.UUID       `json:"doctor_id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	Date          civil.Date      `json:"date"`
	Start         civil.TimeOfDay `json:"start"`
	End           civil.TimeOfDay `json:"end"`
	OldStatus     string          `json:"old_status"` // empty on creation
	NewStatus     string          `json:"new_status"`
	At            time.Time       `json:"at"`
}

// Publisher is what the scheduling core sees: fire-and-forget, best-effort.
type Publisher interface {
	Publish(event Event)
}

// NopPublisher drops every event. Used by the sweeper binary and tests
// that do not carry live sessions.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
