package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/scheduling/internal/civil"
)

type PgStore struct {
	pool      *pgxpool.Pool
	maxPerDay int
}

func NewPgStore(pool *pgxpool.Pool, maxPerDay int) *PgStore {
	return &PgStore{pool: pool, maxPerDay: maxPerDay}
}

func (s *PgStore) Set(ctx context.Context, doctorID uuid.UUID, date civil.Date, windows []Window, available bool) (*Day, error) {
	if err := ValidateWindows(windows, s.maxPerDay); err != nil {
		return nil, err
	}

	if windows == nil {
		windows = []Window{}
	}
	encoded, err := json.Marshal(windows)
	if err != nil {
		return nil, fmt.Errorf("encode windows: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO doctor_availability (doctor_id, day, windows, available, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (doctor_id, day) DO UPDATE
		SET windows = EXCLUDED.windows,
		    available = EXCLUDED.available,
		    updated_at = now()
		RETURNING doctor_id, day, windows, available, updated_at
	`, doctorID, date.At(0, time.UTC), encoded, available)

	return scanDay(row)
}

func (s *PgStore) Get(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Day, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT doctor_id, day, windows, available, updated_at
		FROM doctor_availability
		WHERE doctor_id = $1 AND day = $2
	`, doctorID, date.At(0, time.UTC))

	day, err := scanDay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Day{DoctorID: doctorID, Date: date, Available: false}, nil
		}
		return nil, err
	}
	return day, nil
}

func scanDay(row pgx.Row) (*Day, error) {
	var d Day
	var day time.Time
	var encoded []byte

	err := row.Scan(&d.DoctorID, &day, &encoded, &d.Available, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.Date = civil.DateOf(day)
	if err := json.Unmarshal(encoded, &d.Windows); err != nil {
		return nil, fmt.Errorf("decode windows: %w", err)
	}
	return &d, nil
}
