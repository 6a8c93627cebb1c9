package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/civil"
	"github.com/careslot/scheduling/internal/config"
	"github.com/careslot/scheduling/internal/notify"
	redisclient "github.com/careslot/scheduling/internal/redis"
	"github.com/careslot/scheduling/internal/slot"
)

var (
	ErrInvalidInterval          = errors.New("invalid appointment interval")
	ErrPastDate                 = errors.New("appointment interval is in the past")
	ErrDoctorUnavailable        = errors.New("doctor is unknown or deactivated")
	ErrOutsideAvailability      = errors.New("interval is outside the doctor's declared availability")
	ErrSlotTaken                = errors.New("slot is no longer available")
	ErrBookingTimeout           = errors.New("could not admit booking in time, please retry")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrNotAuthorized            = errors.New("actor is not allowed to perform this transition")
	ErrCancellationWindowClosed = errors.New("cancellation window has closed")
)

// Service owns booking admission, the appointment state machine, and slot
// resolution. Both request handlers and the reconciliation sweeper funnel
// through the same transition operations.
type Service struct {
	repo   Repository
	avail  availability.Store
	locker redisclient.Locker
	pub    notify.Publisher
	cfg    config.Config
	log    zerolog.Logger

	now func() time.Time
	loc *time.Location
}

func NewService(repo Repository, avail availability.Store, locker redisclient.Locker, pub notify.Publisher, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		avail:  avail,
		locker: locker,
		pub:    pub,
		cfg:    cfg,
		log:    log.With().Str("component", "appointment").Logger(),
		now:    time.Now,
		loc:    time.UTC,
	}
}

type BookRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      civil.Date
	Start     civil.TimeOfDay
	End       civil.TimeOfDay
	Reason    string
}

// Book admits a patient into an interval of the doctor's declared
// availability. The admission lock only bounds contention time; the
// store-level overlap transaction is what guarantees at most one of any
// set of concurrent bookings for the same interval succeeds.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	iv := civil.Interval{Start: req.Start, End: req.End}
	if req.Date.IsZero() || !iv.Valid() {
		return nil, ErrInvalidInterval
	}
	if req.Date.At(req.Start, s.loc).Before(s.now()) {
		return nil, ErrPastDate
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, ErrDoctorUnavailable
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Active {
		return nil, ErrDoctorUnavailable
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	day, err := s.avail.Get(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if !day.WindowContaining(iv) {
		return nil, ErrOutsideAvailability
	}

	var created *Appointment

	err = s.locker.WithBookingLock(ctx, req.DoctorID, req.Date, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateIfFree(lockCtx, &Appointment{
			DoctorID:  req.DoctorID,
			PatientID: req.PatientID,
			Date:      req.Date,
			Start:     req.Start,
			End:       req.End,
			Status:    StatusPending,
			Reason:    req.Reason,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingTimeout
		}
		if errors.Is(err, ErrConflict) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", created.Date.String()).
		Str("interval", created.Interval().String()).
		Msg("appointment booked")

	s.publish(created, "")
	return created, nil
}

// Confirm moves a pending appointment to confirmed. Doctor only.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, nil, func(a *Appointment) error {
		return requireDoctor(a, actor)
	})
}

// Reject moves a pending appointment to rejected, storing the reason in
// the notes. Doctor only.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	return s.transition(ctx, id, StatusRejected, &reason, func(a *Appointment) error {
		return requireDoctor(a, actor)
	})
}

// Cancel moves a confirmed appointment to cancelled. Either party may
// cancel up to the configured cutoff before the scheduled start.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, nil, func(a *Appointment) error {
		if err := requireParty(a, actor); err != nil {
			return err
		}
		if s.now().After(a.Date.At(a.Start, s.loc).Add(-s.cfg.CancelCutoff)) {
			return ErrCancellationWindowClosed
		}
		return nil
	})
}

// Complete moves a confirmed appointment to completed. System only;
// invoked by the reconciliation sweeper, never by a user-facing call.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, nil, func(a *Appointment) error {
		if actor.Role != RoleSystem {
			return ErrNotAuthorized
		}
		return nil
	})
}

// transition applies one state-machine edge: load, authorize, check the
// edge, CAS the status, publish. guard sees the appointment in its current
// state before any write.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, notes *string, guard func(*Appointment) error) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := guard(appt); err != nil {
		return nil, err
	}

	if !appt.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to, notes)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("old_status", string(appt.Status)).
		Str("new_status", string(updated.Status)).
		Msg("appointment transitioned")

	s.publish(updated, appt.Status)
	return updated, nil
}

// Reschedule moves an appointment to a new interval under the same window
// and overlap guards as booking. Doctor only; the appointment's own row is
// excluded from the overlap check.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, actor Actor, date civil.Date, start, end civil.TimeOfDay) (*Appointment, error) {
	iv := civil.Interval{Start: start, End: end}
	if date.IsZero() || !iv.Valid() {
		return nil, ErrInvalidInterval
	}
	if date.At(start, s.loc).Before(s.now()) {
		return nil, ErrPastDate
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireDoctor(appt, actor); err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}

	day, err := s.avail.Get(ctx, appt.DoctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if !day.WindowContaining(iv) {
		return nil, ErrOutsideAvailability
	}

	var moved *Appointment
	err = s.locker.WithBookingLock(ctx, appt.DoctorID, date, func(lockCtx context.Context) error {
		m, err := s.repo.MoveIfFree(lockCtx, id, date, start, end)
		if err != nil {
			return err
		}
		moved = m
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingTimeout
		}
		if errors.Is(err, ErrConflict) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}

	s.publish(moved, moved.Status)
	return moved, nil
}

// ResolveSlots computes the bookable candidate slots for one doctor's day
// from a point-in-time snapshot. The result carries no freshness
// guarantee; Book re-checks authoritatively.
func (s *Service) ResolveSlots(ctx context.Context, doctorID uuid.UUID, date civil.Date, granularityMin int) ([]slot.Slot, error) {
	if granularityMin <= 0 {
		granularityMin = s.cfg.SlotGranularityMin
	}

	day, err := s.avail.Get(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	active, err := s.repo.ListActiveByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}

	busy := make([]civil.Interval, 0, len(active))
	for _, a := range active {
		busy = append(busy, a.Interval())
	}

	return slot.Collect(slot.Resolve(doctorID, date, day.OpenWindows(), busy, granularityMin)), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID, clampLimit(limit), clampOffset(offset))
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return s.repo.ListByDoctor(ctx, doctorID, clampLimit(limit), clampOffset(offset))
}

func (s *Service) publish(a *Appointment, old Status) {
	s.pub.Publish(notify.Event{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date,
		Start:         a.Start,
		End:           a.End,
		OldStatus:     string(old),
		NewStatus:     string(a.Status),
		At:            s.now(),
	})
}

func requireDoctor(a *Appointment, actor Actor) error {
	if actor.Role != RoleDoctor || actor.UserID != a.DoctorID {
		return ErrNotAuthorized
	}
	return nil
}

func requireParty(a *Appointment, actor Actor) error {
	switch actor.Role {
	case RoleDoctor:
		if actor.UserID == a.DoctorID {
			return nil
		}
	case RolePatient:
		if actor.UserID == a.PatientID {
			return nil
		}
	}
	return ErrNotAuthorized
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
