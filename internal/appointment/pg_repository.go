package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/scheduling/internal/civil"
)

const (
	pgExclusionViolation   = "23P01"
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, doctor_id, patient_id, day, start_min, end_min,
	status, reason, notes, created_at, updated_at, update_count`

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time
	var startMin, endMin int

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&day,
		&startMin,
		&endMin,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.UpdateCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = civil.DateOf(day)
	a.Start = civil.TimeOfDay(startMin)
	a.End = civil.TimeOfDay(endMin)
	return &a, nil
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation, pgUniqueViolation, pgSerializationFailure:
			return true
		}
	}
	return false
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND day = $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY start_min
	`, doctorID, date.At(0, time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) CreateIfFree(ctx context.Context, a *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Authoritative overlap re-check, inside the same transaction as the
	// insert. The exclusion constraint backs this up if two transactions
	// pass the check simultaneously.
	var conflictID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1
		  AND day = $2
		  AND status IN ('pending', 'confirmed')
		  AND start_min < $4
		  AND end_min > $3
		LIMIT 1
	`, a.DoctorID, a.Date.At(0, time.UTC), int(a.Start), int(a.End)).Scan(&conflictID)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("overlap check: %w", err)
	}

	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, day, start_min, end_min, status, reason, notes, created_at, updated_at, update_count)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, now(), now(), 0)
		RETURNING`+appointmentColumns+`
	`, id, a.DoctorID, a.PatientID, a.Date.At(0, time.UTC), int(a.Start), int(a.End), a.Reason, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		if isConflict(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) MoveIfFree(ctx context.Context, id uuid.UUID, date civil.Date, start, end civil.TimeOfDay) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	var conflictID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1
		  AND day = $2
		  AND status IN ('pending', 'confirmed')
		  AND start_min < $4
		  AND end_min > $3
		  AND id <> $5
		LIMIT 1
	`, current.DoctorID, date.At(0, time.UTC), int(start), int(end), id).Scan(&conflictID)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("overlap check: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET day = $2,
		    start_min = $3,
		    end_min = $4,
		    updated_at = now(),
		    update_count = update_count + 1
		WHERE id = $1
		RETURNING`+appointmentColumns+`
	`, id, date.At(0, time.UTC), int(start), int(end))

	moved, err := scanAppointment(row)
	if err != nil {
		if isConflict(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("move appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("commit reschedule tx: %w", err)
	}

	return moved, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, notes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = COALESCE($4, notes),
		    updated_at = now(),
		    update_count = update_count + 1
		WHERE id = $1
		  AND status = $3
		RETURNING`+appointmentColumns+`
	`, id, to, from, notes)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Distinguish a missing row from a lost CAS.
			if _, getErr := r.GetAppointmentByID(ctx, id); getErr == nil {
				return nil, ErrStaleStatus
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) FindElapsedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error) {
	day, minute := elapsedCut(now)

	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND (day < $1 OR (day = $1 AND end_min <= $2))
		ORDER BY day, end_min
	`, day.At(0, time.UTC), minute)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// elapsedCut converts now into the UTC day and minute-of-day the elapsed
// scan compares against. Civil times are interpreted in UTC everywhere in
// the core; a now carrying the host's local zone must not shift the
// boundary.
func elapsedCut(now time.Time) (civil.Date, int) {
	now = now.In(time.UTC)
	return civil.DateOf(now), int(civil.TimeOfDayOf(now))
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY day DESC, start_min DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY day DESC, start_min DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
