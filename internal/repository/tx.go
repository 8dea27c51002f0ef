package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the set of operations the admission protocol runs inside one
// transaction. Reads observe the transaction's own view, including rows it
// has inserted but not yet committed.
type Tx interface {
	// LockEventForUpdate takes an exclusive lock on a single event row,
	// blocking until any other holder's transaction ends.
	LockEventForUpdate(ctx context.Context, eventID string) (*model.Event, error)
	FindAttendeeByEmail(ctx context.Context, eventID, email string) (*model.Attendee, error)
	CountAttendees(ctx context.Context, eventID string) (int, error)
	// InsertAttendee returns ErrConstraintViolation when (event_id, email)
	// is already taken.
	InsertAttendee(ctx context.Context, eventID, name, email string) (*model.Attendee, error)
}

// Store runs transactions against the event/attendee tables.
type Store struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewStore constructs a Store. A positive lockTimeout is applied to every
// transaction with SET LOCAL semantics.
func NewStore(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

// InTx runs fn in a read-committed transaction. The transaction commits when
// fn returns nil and rolls back on any error or panic, which also releases
// every row lock fn acquired.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback is a no-op after a successful commit. It runs on a context
	// detached from ctx so a cancelled caller still releases its locks.
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx,
			`SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds()),
		); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockEventForUpdate(ctx context.Context, eventID string) (*model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}

func (t *pgTx) FindAttendeeByEmail(ctx context.Context, eventID, email string) (*model.Attendee, error) {
	var a model.Attendee
	err := t.tx.QueryRow(ctx,
		`SELECT id, event_id, name, email, registered_at
		 FROM attendees
		 WHERE event_id = $1 AND email = $2`,
		eventID, email,
	).Scan(&a.ID, &a.EventID, &a.Name, &a.Email, &a.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find attendee: %w", err)
	}
	return &a, nil
}

func (t *pgTx) CountAttendees(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendees WHERE event_id = $1`, eventID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attendees: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertAttendee(ctx context.Context, eventID, name, email string) (*model.Attendee, error) {
	a := model.Attendee{
		ID:      uuid.New().String(),
		EventID: eventID,
		Name:    name,
		Email:   email,
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO attendees (id, event_id, name, email)
		 VALUES ($1, $2, $3, $4)
		 RETURNING registered_at`,
		a.ID, a.EventID, a.Name, a.Email,
	).Scan(&a.RegisteredAt)
	if err != nil {
		return nil, fmt.Errorf("insert attendee: %w", mapWriteError(err))
	}
	return &a, nil
}
