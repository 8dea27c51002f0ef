// Package model defines the core domain types for event registration.
package model

import "time"

// Event is a capacity-bounded, time-bounded activity attendees register for.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    *string   `json:"location"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	MaxCapacity int       `json:"max_capacity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasEnded reports whether registration is closed at now. An event ending
// exactly at now counts as ended.
func (e *Event) HasEnded(now time.Time) bool {
	return !e.EndTime.After(now)
}

// Attendee is one confirmed registration for one event.
type Attendee struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CreateEventRequest is the payload for creating a new event. Timestamps are
// ISO-8601 strings; values without an offset are read in the service's
// default timezone.
type CreateEventRequest struct {
	Name        string  `json:"name"`
	Location    *string `json:"location"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	MaxCapacity *int    `json:"max_capacity"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ListEventsParams selects a page of events.
type ListEventsParams struct {
	Upcoming bool
	Page
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
