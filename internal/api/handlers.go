package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/civil"
	"github.com/careslot/scheduling/internal/slot"
)

func listSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		date, err := civil.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		granularity := 0
		if g := r.URL.Query().Get("granularity"); g != "" {
			granularity, err = strconv.Atoi(g)
			if err != nil || granularity < 0 {
				writeError(w, http.StatusBadRequest, "invalid_granularity", "granularity must be a non-negative number of minutes")
				return
			}
		}

		slots, err := svc.ResolveSlots(r.Context(), doctorID, date, granularity)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if slots == nil {
			slots = []slot.Slot{}
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func setAvailabilityHandler(store availability.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		actor, ok := GetActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "identity headers missing")
			return
		}
		if actor.Role != appointment.RoleDoctor || actor.UserID != doctorID {
			writeError(w, http.StatusForbidden, "not_authorized", "only the doctor may change their availability")
			return
		}

		var req SetAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Date.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_date", "date is required")
			return
		}

		available := true
		if req.Available != nil {
			available = *req.Available
		}

		day, err := store.Set(r.Context(), doctorID, req.Date, req.Windows, available)
		if err != nil {
			if errors.Is(err, availability.ErrInvalidWindow) {
				writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(day))
	}
}

func getAvailabilityHandler(store availability.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		date, err := civil.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		day, err := store.Get(r.Context(), doctorID, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(day))
	}
}

func toAvailabilityResponse(day *availability.Day) AvailabilityResponse {
	windows := day.Windows
	if windows == nil {
		windows = []availability.Window{}
	}
	return AvailabilityResponse{
		DoctorID:  day.DoctorID,
		Date:      day.Date,
		Windows:   windows,
		Available: day.Available,
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			Date:      req.Date,
			Start:     req.Start,
			End:       req.End,
			Reason:    req.Reason,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var (
			appts []appointment.Appointment
			err   error
		)
		switch {
		case r.URL.Query().Get("patient_id") != "":
			var patientID uuid.UUID
			patientID, err = uuid.Parse(r.URL.Query().Get("patient_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPatient(r.Context(), patientID, limit, offset)
		case r.URL.Query().Get("doctor_id") != "":
			var doctorID uuid.UUID
			doctorID, err = uuid.Parse(r.URL.Query().Get("doctor_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByDoctor(r.Context(), doctorID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id is required")
			return
		}

		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// transitionHandler serves confirm, reject and cancel, which differ only in
// the service call they make.
func transitionHandler(apply func(r *http.Request, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, ok := GetActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "identity headers missing")
			return
		}

		appt, err := apply(r, id, actor)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return svc.Confirm(r.Context(), id, actor)
	})
}

func rejectAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		var req RejectAppointmentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		return svc.Reject(r.Context(), id, actor, req.Reason)
	})
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return svc.Cancel(r.Context(), id, actor)
	})
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, appointment.ErrInvalidInterval
		}
		return svc.Reschedule(r.Context(), id, actor, req.Date, req.Start, req.End)
	})
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	case errors.Is(err, appointment.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "doctor_unavailable", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, "outside_availability", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_no_longer_available", err.Error())
	case errors.Is(err, appointment.ErrBookingTimeout):
		writeError(w, http.StatusConflict, "booking_timeout", "could not admit booking in time, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, appointment.ErrStaleStatus):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrCancellationWindowClosed):
		writeError(w, http.StatusConflict, "cancellation_window_closed", err.Error())
	case errors.Is(err, appointment.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
