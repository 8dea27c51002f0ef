package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/logger"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TxRunner runs fn inside one store transaction, committing when fn returns
// nil and rolling back otherwise. *repository.Store satisfies it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(repository.Tx) error) error
}

// AdmissionConfig tunes retries of transient store failures.
type AdmissionConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// AdmissionOption customizes an Admission.
type AdmissionOption func(*Admission)

// WithClock overrides the wall clock used for the event-ended check.
func WithClock(now func() time.Time) AdmissionOption {
	return func(a *Admission) { a.now = now }
}

// Admission serializes registrations per event and enforces capacity and
// per-event email uniqueness.
//
// Every attempt runs in its own transaction that first takes an exclusive
// lock on the event row. Concurrent attempts for one event queue on that
// lock and see each other's committed inserts; attempts for different events
// never share a lock. The (event_id, email) unique constraint catches any
// duplicate that slips past the lock and is reported as a duplicate.
type Admission struct {
	store   TxRunner
	cfg     AdmissionConfig
	log     *logger.Logger
	metrics *telemetry.AdmissionMetrics
	now     func() time.Time
}

// NewAdmission constructs an Admission. metrics may be nil.
func NewAdmission(store TxRunner, cfg AdmissionConfig, log *logger.Logger, metrics *telemetry.AdmissionMetrics, opts ...AdmissionOption) *Admission {
	if log == nil {
		log = logger.NewNop()
	}
	a := &Admission{
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register admits one attendee to an event.
//
// It returns the created attendee, a *RejectionError (ErrEventNotFound,
// ErrEventEnded, ErrDuplicateRegistration, ErrEventFull), or an error
// wrapping ErrUnavailable. A rejected or failed attempt leaves no rows behind.
// name and email are stored as given; syntax checks belong to the caller.
func (a *Admission) Register(ctx context.Context, eventID, name, email string) (*model.Attendee, error) {
	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "admission.register",
		trace.WithAttributes(telemetry.EventIDAttr(eventID)),
	)
	defer span.End()

	log := a.log.WithContext(ctx).With(zap.String("event_id", eventID))

	attendee, err := a.register(ctx, span, log, eventID, name, email)
	outcome := outcomeOf(err)
	a.metrics.RecordAttempt(ctx, outcome, time.Since(started))
	span.SetAttributes(telemetry.OutcomeAttr(outcome))

	var rej *RejectionError
	switch {
	case err == nil:
		log.Info("attendee registered", zap.String("attendee_id", attendee.ID))
	case errors.As(err, &rej):
		log.Debug("registration rejected", zap.String("reason", string(rej.Reason)))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		log.Error("registration failed", zap.Error(err))
	}
	return attendee, err
}

func (a *Admission) register(ctx context.Context, span trace.Span, log *logger.Logger, eventID, name, email string) (*model.Attendee, error) {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return nil, reject(ReasonEventNotFound, eventID)
	}
	eventID = id.String()

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			a.metrics.RecordRetry(ctx)
			span.AddEvent("retry", trace.WithAttributes(attribute.Int(telemetry.AttrAttempt, attempt)))
			log.Warn("retrying registration after transient store failure",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-time.After(a.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		attendee, err := a.attempt(ctx, log, eventID, name, email)
		if err == nil {
			return attendee, nil
		}
		var rej *RejectionError
		if errors.As(err, &rej) {
			return nil, err
		}
		if ctx.Err() != nil || !repository.IsTransient(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: retries exhausted: %w", ErrUnavailable, lastErr)
}

// attempt runs the lock, check, insert sequence once in a fresh transaction.
func (a *Admission) attempt(ctx context.Context, log *logger.Logger, eventID, name, email string) (*model.Attendee, error) {
	var created *model.Attendee
	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		event, err := tx.LockEventForUpdate(ctx, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(ReasonEventNotFound, eventID)
		}
		if err != nil {
			return err
		}

		// Read after the lock is held so the boundary is judged against
		// the serialized order.
		if event.HasEnded(a.now()) {
			return reject(ReasonEventEnded, eventID)
		}

		_, err = tx.FindAttendeeByEmail(ctx, eventID, email)
		switch {
		case err == nil:
			return reject(ReasonDuplicate, eventID)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		count, err := tx.CountAttendees(ctx, eventID)
		if err != nil {
			return err
		}
		if count >= event.MaxCapacity {
			return reject(ReasonEventFull, eventID)
		}

		attendee, err := tx.InsertAttendee(ctx, eventID, name, email)
		if errors.Is(err, repository.ErrConstraintViolation) {
			log.Warn("unique constraint caught a duplicate past the event lock", zap.Error(err))
			return reject(ReasonDuplicate, eventID)
		}
		if err != nil {
			return err
		}
		created = attendee
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func outcomeOf(err error) string {
	var rej *RejectionError
	switch {
	case err == nil:
		return "registered"
	case errors.As(err, &rej):
		return string(rej.Reason)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unavailable"
	}
}
