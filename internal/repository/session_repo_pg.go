package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.BookingSession) error
	Get(ctx context.Context, id string) (*domain.BookingSession, error)
	Update(ctx context.Context, session *domain.BookingSession) error
	AbandonInactiveBefore(ctx context.Context, deadline time.Time) ([]domain.BookingSession, error)
}

type PGSessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) SessionRepository {
	return &PGSessionRepository{db: db}
}

const sessionColumns = `id, step, status, device, services, quote, COALESCE(slot_date,''), COALESCE(slot_time,''), customer, urgency, COALESCE(condition,''), has_warranty, COALESCE(problem_notes,''), COALESCE(confirmation_ref,''), created_at, updated_at`

func (r *PGSessionRepository) Create(ctx context.Context, session *domain.BookingSession) error {
	device, services, quote, customer, err := marshalSnapshots(session)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `INSERT INTO booking_sessions (id, step, status, device, services, quote, slot_date, slot_time, customer, urgency, condition, has_warranty, problem_notes, confirmation_ref)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), $9, $10, NULLIF($11,''), $12, NULLIF($13,''), NULLIF($14,''))
		RETURNING created_at, updated_at`,
		session.ID, session.Step, session.Status, device, services, quote,
		session.SlotDate, session.SlotTime, customer, session.Urgency, string(session.Condition),
		session.HasWarranty, session.ProblemNotes, session.ConfirmationRef).
		Scan(&session.CreatedAt, &session.UpdatedAt)
}

func (r *PGSessionRepository) Get(ctx context.Context, id string) (*domain.BookingSession, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM booking_sessions WHERE id=$1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// Update writes the whole aggregate back and bumps updated_at, which is the
// activity timestamp the abandonment sweep keys on.
func (r *PGSessionRepository) Update(ctx context.Context, session *domain.BookingSession) error {
	device, services, quote, customer, err := marshalSnapshots(session)
	if err != nil {
		return err
	}
	row := r.db.QueryRow(ctx, `UPDATE booking_sessions SET step=$2, status=$3, device=$4, services=$5, quote=$6,
		slot_date=NULLIF($7,''), slot_time=NULLIF($8,''), customer=$9, urgency=$10, condition=NULLIF($11,''),
		has_warranty=$12, problem_notes=NULLIF($13,''), confirmation_ref=NULLIF($14,''), updated_at=now()
		WHERE id=$1 RETURNING updated_at`,
		session.ID, session.Step, session.Status, device, services, quote,
		session.SlotDate, session.SlotTime, customer, session.Urgency, string(session.Condition),
		session.HasWarranty, session.ProblemNotes, session.ConfirmationRef)
	if err := row.Scan(&session.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *PGSessionRepository) AbandonInactiveBefore(ctx context.Context, deadline time.Time) ([]domain.BookingSession, error) {
	rows, err := r.db.Query(ctx, `UPDATE booking_sessions SET status=$1, updated_at=now()
		WHERE status=$2 AND updated_at <= $3
		RETURNING `+sessionColumns, domain.SessionStatusAbandoned, domain.SessionStatusInProgress, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var abandoned []domain.BookingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		abandoned = append(abandoned, *s)
	}
	return abandoned, rows.Err()
}

func marshalSnapshots(s *domain.BookingSession) (device, services, quote, customer []byte, err error) {
	if s.Device != nil {
		if device, err = json.Marshal(s.Device); err != nil {
			return
		}
	}
	if len(s.Services) > 0 {
		if services, err = json.Marshal(s.Services); err != nil {
			return
		}
	}
	if s.Quote != nil {
		if quote, err = json.Marshal(s.Quote); err != nil {
			return
		}
	}
	if s.Customer != nil {
		customer, err = json.Marshal(s.Customer)
	}
	return
}

func scanSession(row pgx.Row) (*domain.BookingSession, error) {
	var s domain.BookingSession
	var step, status, urgency, condition string
	var device, services, quote, customer []byte
	if err := row.Scan(&s.ID, &step, &status, &device, &services, &quote,
		&s.SlotDate, &s.SlotTime, &customer, &urgency, &condition, &s.HasWarranty,
		&s.ProblemNotes, &s.ConfirmationRef, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Step = domain.Step(step)
	s.Status = domain.SessionStatus(status)
	s.Urgency = domain.Urgency(urgency)
	s.Condition = domain.Condition(condition)
	if len(device) > 0 {
		s.Device = &domain.Device{}
		if err := json.Unmarshal(device, s.Device); err != nil {
			return nil, err
		}
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &s.Services); err != nil {
			return nil, err
		}
	}
	if len(quote) > 0 {
		s.Quote = &domain.Quote{}
		if err := json.Unmarshal(quote, s.Quote); err != nil {
			return nil, err
		}
	}
	if len(customer) > 0 {
		s.Customer = &domain.CustomerInfo{}
		if err := json.Unmarshal(customer, s.Customer); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

var _ SessionRepository = (*PGSessionRepository)(nil)
