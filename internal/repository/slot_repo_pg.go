package repository

import (
	"context"
	"errors"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SlotRepository owns appointment slot state. Reserve is the single place in
// the engine that needs cross-session atomicity: the conditional UPDATE is the
// authority on who won a slot.
type SlotRepository interface {
	ListOpen(ctx context.Context, horizonDays int) ([]domain.AppointmentSlot, error)
	Get(ctx context.Context, date, timeOfDay string) (*domain.AppointmentSlot, error)
	Reserve(ctx context.Context, date, timeOfDay, sessionID string) error
	Release(ctx context.Context, date, timeOfDay, sessionID string) error
	EnsureHorizon(ctx context.Context, horizonDays int, times []string) error
}

type PGSlotRepository struct {
	db *pgxpool.Pool
}

func NewSlotRepository(db *pgxpool.Pool) SlotRepository {
	return &PGSlotRepository{db: db}
}

func (r *PGSlotRepository) ListOpen(ctx context.Context, horizonDays int) ([]domain.AppointmentSlot, error) {
	rows, err := r.db.Query(ctx, `SELECT slot_date, slot_time, status, COALESCE(session_id, ''), created_at, updated_at
		FROM appointment_slots
		WHERE status='open' AND slot_date >= to_char(current_date, 'YYYY-MM-DD') AND slot_date < to_char(current_date + $1::int, 'YYYY-MM-DD')
		ORDER BY slot_date, slot_time`, horizonDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]domain.AppointmentSlot, 0)
	for rows.Next() {
		var s domain.AppointmentSlot
		var status string
		if err := rows.Scan(&s.Date, &s.Time, &status, &s.SessionID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = domain.SlotStatus(status)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *PGSlotRepository) Get(ctx context.Context, date, timeOfDay string) (*domain.AppointmentSlot, error) {
	row := r.db.QueryRow(ctx, `SELECT slot_date, slot_time, status, COALESCE(session_id, ''), created_at, updated_at FROM appointment_slots WHERE slot_date=$1 AND slot_time=$2`, date, timeOfDay)
	var s domain.AppointmentSlot
	var status string
	if err := row.Scan(&s.Date, &s.Time, &status, &s.SessionID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.Status = domain.SlotStatus(status)
	return &s, nil
}

func (r *PGSlotRepository) Reserve(ctx context.Context, date, timeOfDay, sessionID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE appointment_slots SET status='booked', session_id=$3, updated_at=now()
		WHERE slot_date=$1 AND slot_time=$2 AND status='open'`, date, timeOfDay, sessionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Already booked, held, or never existed. The caller only needs to
		// know the slot cannot be taken.
		return domain.ErrSlotUnavailable
	}
	return nil
}

func (r *PGSlotRepository) Release(ctx context.Context, date, timeOfDay, sessionID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE appointment_slots SET status='open', session_id=NULL, updated_at=now()
		WHERE slot_date=$1 AND slot_time=$2 AND session_id=$3 AND status IN ('booked','held')`, date, timeOfDay, sessionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		slot, err := r.Get(ctx, date, timeOfDay)
		if err != nil {
			return err
		}
		if slot.Status == domain.SlotStatusOpen {
			return nil
		}
		return domain.ErrNotOwner
	}
	return nil
}

// EnsureHorizon seeds open slots for the rolling window; existing rows are
// left untouched so reservation state survives the sweep.
func (r *PGSlotRepository) EnsureHorizon(ctx context.Context, horizonDays int, times []string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO appointment_slots (slot_date, slot_time, status)
		SELECT to_char(d, 'YYYY-MM-DD'), t, 'open'
		FROM generate_series(current_date, current_date + $1::int - 1, interval '1 day') AS d,
		     unnest($2::text[]) AS t
		ON CONFLICT (slot_date, slot_time) DO NOTHING`, horizonDays, times)
	return err
}

var _ SlotRepository = (*PGSlotRepository)(nil)
