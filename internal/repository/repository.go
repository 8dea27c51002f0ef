// Package repository implements the event/attendee store on PostgreSQL.
// It uses pgx directly (no ORM) so every lock and constraint is visible in SQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConstraintViolation is returned when the store rejects a write with a
// unique or check constraint.
var ErrConstraintViolation = errors.New("constraint violation")

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// mapWriteError converts constraint failures to ErrConstraintViolation and
// leaves everything else untouched.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeCheckViolation:
			return fmt.Errorf("%w: %s", ErrConstraintViolation, pgErr.ConstraintName)
		}
	}
	return err
}

// IsTransient reports whether err is a store failure worth retrying in a new
// transaction: serialization failures, deadlocks, lock timeouts, and
// connection errors pgconn marks safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return true
		}
		return false
	}
	var connectErr *pgconn.ConnectError
	return pgconn.SafeToRetry(err) || errors.As(err, &connectErr)
}

const eventColumns = `id, name, location, start_time, end_time, max_capacity, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Location, &e.StartTime, &e.EndTime, &e.MaxCapacity, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Location, &e.StartTime, &e.EndTime, &e.MaxCapacity, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event with a generated UUID. Identity and timestamps
// are assigned here and by the database; fields on e are not modified.
func (r *EventRepository) Create(ctx context.Context, e model.Event) (*model.Event, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO events (id, name, location, start_time, end_time, max_capacity)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+eventColumns,
		uuid.New().String(), e.Name, e.Location, e.StartTime, e.EndTime, e.MaxCapacity,
	)
	created, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", mapWriteError(err))
	}
	return created, nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListUpcoming returns events whose end_time is after now, soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, now time.Time, page model.Page) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE end_time > $1
		 ORDER BY start_time ASC, id ASC
		 LIMIT $2 OFFSET $3`,
		now, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return collectEvents(rows)
}

// ListAll returns every event ordered by start_time.
func (r *EventRepository) ListAll(ctx context.Context, page model.Page) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY start_time ASC, id ASC
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

// DeleteAll removes every event; attendees go with them by cascade.
// Only the seed tool calls this.
func (r *EventRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

// AttendeeRepository handles read access to attendees. Attendees are only
// written through Store.InTx.
type AttendeeRepository struct {
	db *pgxpool.Pool
}

// NewAttendeeRepository constructs an AttendeeRepository.
func NewAttendeeRepository(db *pgxpool.Pool) *AttendeeRepository {
	return &AttendeeRepository{db: db}
}

// ListByEvent returns the attendees of an event in registration order.
func (r *AttendeeRepository) ListByEvent(ctx context.Context, eventID string, page model.Page) ([]model.Attendee, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, name, email, registered_at
		 FROM attendees
		 WHERE event_id = $1
		 ORDER BY registered_at ASC, id ASC
		 LIMIT $2 OFFSET $3`,
		eventID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		var a model.Attendee
		if err := rows.Scan(&a.ID, &a.EventID, &a.Name, &a.Email, &a.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}
