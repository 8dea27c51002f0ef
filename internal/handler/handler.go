// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/event-registration/internal/logger"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// EventService is the business API the handlers call.
// *service.EventService satisfies it.
type EventService interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context, params model.ListEventsParams) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListAttendees(ctx context.Context, eventID string, page model.Page) ([]model.Attendee, error)
	Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Attendee, error)
}

// EventHandler holds all HTTP handlers for the event registration API.
type EventHandler struct {
	svc EventService
	log *logger.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc EventService, log *logger.Logger) *EventHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &EventHandler{svc: svc, log: log}
}

// Routes mounts the event endpoints on r. registerLimit, when non-nil, wraps
// only the registration endpoint.
func (h *EventHandler) Routes(r chi.Router, registerLimit func(http.Handler) http.Handler) {
	if registerLimit == nil {
		registerLimit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.With(registerLimit).Post("/{id}/register", h.Register)
		r.Get("/{id}/attendees", h.ListAttendees)
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// queryInt reads an integer query parameter, returning def when it is absent.
// Range checks belong to the service.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

func queryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return v, nil
}

// writeServiceError maps service outcomes to HTTP statuses.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, service.ErrEventEnded):
		writeError(w, http.StatusBadRequest, "event has already ended")
	case errors.Is(err, service.ErrDuplicateRegistration):
		writeError(w, http.StatusConflict, "email is already registered for this event")
	case errors.Is(err, service.ErrEventFull):
		writeError(w, http.StatusConflict, "event is at full capacity")
	case errors.Is(err, service.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "registration temporarily unavailable, please retry")
	default:
		h.log.WithContext(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?upcoming=true&limit=20&offset=0
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	upcoming, err := queryBool(r, "upcoming", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.svc.ListEvents(r.Context(), model.ListEventsParams{
		Upcoming: upcoming,
		Page:     model.Page{Limit: limit, Offset: offset},
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Register handles POST /events/{id}/register
// Performs a concurrency-safe registration for the specified event.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	attendee, err := h.svc.Register(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, attendee)
}

// ListAttendees handles GET /events/{id}/attendees?limit=100&offset=0
func (h *EventHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultAttendeeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attendees, err := h.svc.ListAttendees(r.Context(), chi.URLParam(r, "id"), model.Page{Limit: limit, Offset: offset})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if attendees == nil {
		attendees = []model.Attendee{}
	}

	writeJSON(w, http.StatusOK, attendees)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health. It reports 503 when the database is
// unreachable.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
