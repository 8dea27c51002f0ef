// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/google/uuid"
)

// Pagination bounds.
const (
	DefaultEventLimit    = 20
	MaxEventLimit        = 200
	DefaultAttendeeLimit = 100
)

// EventStore is the event persistence EventService needs.
// *repository.EventRepository satisfies it.
type EventStore interface {
	Create(ctx context.Context, e model.Event) (*model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	ListUpcoming(ctx context.Context, now time.Time, page model.Page) ([]model.Event, error)
	ListAll(ctx context.Context, page model.Page) ([]model.Event, error)
}

// AttendeeLister reads attendees. *repository.AttendeeRepository satisfies it.
type AttendeeLister interface {
	ListByEvent(ctx context.Context, eventID string, page model.Page) ([]model.Attendee, error)
}

// Registrar admits attendees. *Admission satisfies it.
type Registrar interface {
	Register(ctx context.Context, eventID, name, email string) (*model.Attendee, error)
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events    EventStore
	attendees AttendeeLister
	registrar Registrar
	location  *time.Location
	now       func() time.Time
}

// NewEventService constructs an EventService. loc is applied to event
// timestamps submitted without an offset.
func NewEventService(events EventStore, attendees AttendeeLister, registrar Registrar, loc *time.Location) *EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &EventService{
		events:    events,
		attendees: attendees,
		registrar: registrar,
		location:  loc,
		now:       time.Now,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// CreateEvent validates the request and delegates to the repository.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	var location *string
	if req.Location != nil {
		if l := strings.TrimSpace(*req.Location); l != "" {
			location = &l
		}
	}

	start, err := model.ParseTimestamp(req.StartTime, s.location)
	if err != nil {
		return nil, invalid("start_time: %v", err)
	}
	end, err := model.ParseTimestamp(req.EndTime, s.location)
	if err != nil {
		return nil, invalid("end_time: %v", err)
	}
	if !end.After(start) {
		return nil, invalid("end_time must be after start_time")
	}

	if req.MaxCapacity == nil {
		return nil, invalid("max_capacity is required")
	}
	if *req.MaxCapacity < 0 {
		return nil, invalid("max_capacity must be >= 0")
	}

	event, err := s.events.Create(ctx, model.Event{
		Name:        name,
		Location:    location,
		StartTime:   start,
		EndTime:     end,
		MaxCapacity: *req.MaxCapacity,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConstraintViolation) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns a page of events. A zero limit yields an empty page.
func (s *EventService) ListEvents(ctx context.Context, params model.ListEventsParams) ([]model.Event, error) {
	if params.Limit < 0 || params.Limit > MaxEventLimit {
		return nil, invalid("limit must be between 0 and %d", MaxEventLimit)
	}
	if params.Offset < 0 {
		return nil, invalid("offset must be >= 0")
	}

	var (
		events []model.Event
		err    error
	)
	if params.Upcoming {
		events, err = s.events.ListUpcoming(ctx, s.now(), params.Page)
	} else {
		events, err = s.events.ListAll(ctx, params.Page)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrEventNotFound
	}
	event, err := s.events.GetByID(ctx, parsed.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListAttendees returns a page of an event's attendees in registration order.
func (s *EventService) ListAttendees(ctx context.Context, eventID string, page model.Page) ([]model.Attendee, error) {
	if page.Limit < 1 {
		return nil, invalid("limit must be >= 1")
	}
	if page.Offset < 0 {
		return nil, invalid("offset must be >= 0")
	}

	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	attendees, err := s.attendees.ListByEvent(ctx, event.ID, page)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}

// Register validates the registration request and delegates the
// concurrency-safe admission to the registrar.
func (s *EventService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Attendee, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	return s.registrar.Register(ctx, eventID, name, email)
}

// normalizeEmail accepts a bare address only ("a@b.c", not "A <a@b.c>").
// Case is preserved.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", invalid("email is not a valid address")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", invalid("email is not a valid address")
	}
	return email, nil
}
