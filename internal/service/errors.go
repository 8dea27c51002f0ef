package service

import "errors"

// Reason identifies why a registration was rejected.
type Reason string

const (
	ReasonEventNotFound Reason = "event_not_found"
	ReasonEventEnded    Reason = "event_ended"
	ReasonDuplicate     Reason = "duplicate_registration"
	ReasonEventFull     Reason = "event_full"
)

// RejectionError is an expected, non-retryable registration outcome. The
// transaction that produced it was rolled back.
type RejectionError struct {
	Reason  Reason
	EventID string
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonEventNotFound:
		return "event not found"
	case ReasonEventEnded:
		return "event has already ended"
	case ReasonDuplicate:
		return "email is already registered for this event"
	case ReasonEventFull:
		return "event is at full capacity"
	default:
		return string(e.Reason)
	}
}

// Is matches any RejectionError with the same Reason, so callers can write
// errors.Is(err, ErrEventFull).
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Reason == e.Reason
}

// Sentinel rejections for errors.Is.
var (
	ErrEventNotFound         error = &RejectionError{Reason: ReasonEventNotFound}
	ErrEventEnded            error = &RejectionError{Reason: ReasonEventEnded}
	ErrDuplicateRegistration error = &RejectionError{Reason: ReasonDuplicate}
	ErrEventFull             error = &RejectionError{Reason: ReasonEventFull}
)

// ErrUnavailable marks infrastructure failures (lock timeout, lost
// connection, aborted transaction). Retrying the request is meaningful.
var ErrUnavailable = errors.New("registration temporarily unavailable")

// ErrInvalidInput wraps request validation failures.
var ErrInvalidInput = errors.New("invalid input")

// reject builds a RejectionError for eventID.
func reject(reason Reason, eventID string) error {
	return &RejectionError{Reason: reason, EventID: eventID}
}
