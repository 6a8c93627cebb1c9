package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/civil"
)

// memStore is an in-memory availability.Store for handler tests.
type memStore struct {
	days map[string]*availability.Day
}

func newMemStore() *memStore {
	return &memStore{days: make(map[string]*availability.Day)}
}

func (m *memStore) key(doctorID uuid.UUID, date civil.Date) string {
	return doctorID.String() + "/" + date.String()
}

func (m *memStore) Set(_ context.Context, doctorID uuid.UUID, date civil.Date, windows []availability.Window, available bool) (*availability.Day, error) {
	if err := availability.ValidateWindows(windows, 3); err != nil {
		return nil, err
	}
	day := &availability.Day{DoctorID: doctorID, Date: date, Windows: windows, Available: available}
	m.days[m.key(doctorID, date)] = day
	return day, nil
}

func (m *memStore) Get(_ context.Context, doctorID uuid.UUID, date civil.Date) (*availability.Day, error) {
	if day, ok := m.days[m.key(doctorID, date)]; ok {
		return day, nil
	}
	return &availability.Day{DoctorID: doctorID, Date: date, Available: false}, nil
}

func availabilityRouter(store availability.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(IdentityMiddleware)
	r.Get("/doctors/{doctorID}/availability", getAvailabilityHandler(store))
	r.Put("/doctors/{doctorID}/availability", setAvailabilityHandler(store))
	return r
}

func asDoctor(req *http.Request, doctorID uuid.UUID) *http.Request {
	req.Header.Set("X-User-ID", doctorID.String())
	req.Header.Set("X-User-Role", "doctor")
	return req
}

func TestSetAvailability_RoundTrip(t *testing.T) {
	store := newMemStore()
	router := availabilityRouter(store)
	doctorID := uuid.New()

	body := `{"date":"2024-06-01","windows":[{"start":"09:00","end":"12:00"},{"start":"13:00","end":"17:00"}]}`
	req := asDoctor(httptest.NewRequest(http.MethodPut, "/doctors/"+doctorID.String()+"/availability", strings.NewReader(body)), doctorID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/doctors/"+doctorID.String()+"/availability?date=2024-06-01", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var got AvailabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Available || len(got.Windows) != 2 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if got.Windows[0].Start != 9*60 || got.Windows[1].End != 17*60 {
		t.Fatalf("windows did not survive the round trip: %+v", got.Windows)
	}
}

func TestSetAvailability_RequiresTheDoctor(t *testing.T) {
	router := availabilityRouter(newMemStore())
	doctorID := uuid.New()
	body := `{"date":"2024-06-01","windows":[]}`

	// No identity headers at all.
	req := httptest.NewRequest(http.MethodPut, "/doctors/"+doctorID.String()+"/availability", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}

	// A different doctor.
	req = asDoctor(httptest.NewRequest(http.MethodPut, "/doctors/"+doctorID.String()+"/availability", strings.NewReader(body)), uuid.New())
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other doctor: expected 403, got %d", rec.Code)
	}

	// The right user but as a patient.
	req = httptest.NewRequest(http.MethodPut, "/doctors/"+doctorID.String()+"/availability", strings.NewReader(body))
	req.Header.Set("X-User-ID", doctorID.String())
	req.Header.Set("X-User-Role", "patient")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient role: expected 403, got %d", rec.Code)
	}
}

func TestSetAvailability_OverlappingWindows(t *testing.T) {
	router := availabilityRouter(newMemStore())
	doctorID := uuid.New()

	body := `{"date":"2024-06-01","windows":[{"start":"09:00","end":"10:00"},{"start":"09:30","end":"10:30"}]}`
	req := asDoctor(httptest.NewRequest(http.MethodPut, "/doctors/"+doctorID.String()+"/availability", strings.NewReader(body)), doctorID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}

	var got ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error != "invalid_window" {
		t.Fatalf("expected invalid_window, got %q", got.Error)
	}
}

func TestGetAvailability_UndeclaredDateIsClosed(t *testing.T) {
	router := availabilityRouter(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/doctors/"+uuid.NewString()+"/availability?date=2024-06-01", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got AvailabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Available {
		t.Fatal("undeclared date must read as closed")
	}
	if got.Windows == nil || len(got.Windows) != 0 {
		t.Fatalf("expected an empty windows array, got %v", got.Windows)
	}
}

func TestGetAvailability_BadDate(t *testing.T) {
	router := availabilityRouter(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/doctors/"+uuid.NewString()+"/availability?date=06/01/2024", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAppointmentError(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{appointment.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
		{appointment.ErrPastDate, http.StatusBadRequest, "past_date"},
		{appointment.ErrDoctorUnavailable, http.StatusUnprocessableEntity, "doctor_unavailable"},
		{appointment.ErrOutsideAvailability, http.StatusUnprocessableEntity, "outside_availability"},
		{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{appointment.ErrSlotTaken, http.StatusConflict, "slot_no_longer_available"},
		{appointment.ErrBookingTimeout, http.StatusConflict, "booking_timeout"},
		{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
		{appointment.ErrStaleStatus, http.StatusConflict, "invalid_status_transition"},
		{appointment.ErrCancellationWindowClosed, http.StatusConflict, "cancellation_window_closed"},
		{appointment.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
		{errors.New("pool exhausted"), http.StatusInternalServerError, "internal_error"},
		// Wrapped errors must map the same as bare sentinels.
		{fmt.Errorf("%w: confirmed -> confirmed", appointment.ErrInvalidTransition), http.StatusConflict, "invalid_status_transition"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleAppointmentError(rec, tc.err)

		if rec.Code != tc.wantStatus {
			t.Errorf("%v: expected status %d, got %d", tc.err, tc.wantStatus, rec.Code)
			continue
		}
		var got ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Errorf("%v: decode: %v", tc.err, err)
			continue
		}
		if got.Error != tc.wantCode {
			t.Errorf("%v: expected code %q, got %q", tc.err, tc.wantCode, got.Error)
		}
	}
}

func TestIdentityMiddleware(t *testing.T) {
	var (
		gotActor appointment.Actor
		gotOK    bool
	)
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, gotOK = GetActor(r.Context())
	}))

	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Role", "patient")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !gotOK || gotActor.UserID != userID || gotActor.Role != appointment.RolePatient {
		t.Fatalf("expected patient actor, got %+v ok=%v", gotActor, gotOK)
	}

	// A bogus role never yields an actor.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Role", "admin")
	gotOK = false
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotOK {
		t.Fatal("unknown role must not produce an actor")
	}

	// No headers at all proceeds anonymously.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	gotOK = false
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotOK {
		t.Fatal("anonymous request must not produce an actor")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("request id missing from context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected the caller's request id echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}
