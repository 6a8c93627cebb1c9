package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/civil"
)

type BookAppointmentRequest struct {
	DoctorID  string          `json:"doctor_id"`
	PatientID string          `json:"patient_id"`
	Date      civil.Date      `json:"date"`
	Start     civil.TimeOfDay `json:"start"`
	End       civil.TimeOfDay `json:"end"`
	Reason    string          `json:"reason,omitempty"`
}

type RejectAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	Date  civil.Date      `json:"date"`
	Start civil.TimeOfDay `json:"start"`
	End   civil.TimeOfDay `json:"end"`
}

type SetAvailabilityRequest struct {
	Date      civil.Date            `json:"date"`
	Windows   []availability.Window `json:"windows"`
	Available *bool                 `json:"available,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID  uuid.UUID             `json:"doctor_id"`
	Date      civil.Date            `json:"date"`
	Windows   []availability.Window `json:"windows"`
	Available bool                  `json:"available"`
}

type AppointmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	DoctorID    uuid.UUID       `json:"doctor_id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	Date        civil.Date      `json:"date"`
	Start       civil.TimeOfDay `json:"start"`
	End         civil.TimeOfDay `json:"end"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UpdateCount int             `json:"update_count"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		Date:        a.Date,
		Start:       a.Start,
		End:         a.End,
		Status:      string(a.Status),
		Reason:      a.Reason,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		UpdateCount: a.UpdateCount,
	}
}
