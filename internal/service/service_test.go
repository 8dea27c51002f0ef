package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) Create(ctx context.Context, e model.Event) (*model.Event, error) {
	args := m.Called(ctx, e)
	if ev, ok := args.Get(0).(*model.Event); ok {
		return ev, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEventStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	args := m.Called(ctx, id)
	if ev, ok := args.Get(0).(*model.Event); ok {
		return ev, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEventStore) ListUpcoming(ctx context.Context, now time.Time, page model.Page) ([]model.Event, error) {
	args := m.Called(ctx, now, page)
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *mockEventStore) ListAll(ctx context.Context, page model.Page) ([]model.Event, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]model.Event), args.Error(1)
}

type mockAttendeeLister struct {
	mock.Mock
}

func (m *mockAttendeeLister) ListByEvent(ctx context.Context, eventID string, page model.Page) ([]model.Attendee, error) {
	args := m.Called(ctx, eventID, page)
	return args.Get(0).([]model.Attendee), args.Error(1)
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(ctx context.Context, eventID, name, email string) (*model.Attendee, error) {
	args := m.Called(ctx, eventID, name, email)
	if a, ok := args.Get(0).(*model.Attendee); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func newTestService(t *testing.T) (*EventService, *mockEventStore, *mockAttendeeLister, *mockRegistrar) {
	t.Helper()
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	events := new(mockEventStore)
	attendees := new(mockAttendeeLister)
	registrar := new(mockRegistrar)
	return NewEventService(events, attendees, registrar, ist), events, attendees, registrar
}

func TestEventService_CreateEvent(t *testing.T) {
	svc, events, _, _ := newTestService(t)

	want := model.Event{
		Name:        "Go Meetup",
		Location:    strPtr("Bengaluru"),
		StartTime:   time.Date(2026, 5, 1, 4, 30, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 5, 1, 6, 30, 0, 0, time.UTC),
		MaxCapacity: 50,
	}
	created := want
	created.ID = uuid.NewString()
	events.On("Create", mock.Anything, want).Return(&created, nil)

	got, err := svc.CreateEvent(context.Background(), model.CreateEventRequest{
		Name:        "  Go Meetup ",
		Location:    strPtr(" Bengaluru "),
		StartTime:   "2026-05-01T10:00:00",
		EndTime:     "2026-05-01T06:30:00Z",
		MaxCapacity: intPtr(50),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	events.AssertExpectations(t)
}

func TestEventService_CreateEvent_EmptyLocationBecomesNull(t *testing.T) {
	svc, events, _, _ := newTestService(t)
	events.On("Create", mock.Anything, mock.MatchedBy(func(e model.Event) bool {
		return e.Location == nil && e.MaxCapacity == 0
	})).Return(&model.Event{ID: uuid.NewString()}, nil)

	_, err := svc.CreateEvent(context.Background(), model.CreateEventRequest{
		Name:        "Closed beta",
		Location:    strPtr("   "),
		StartTime:   "2026-05-01T10:00:00Z",
		EndTime:     "2026-05-01T11:00:00Z",
		MaxCapacity: intPtr(0),
	})
	require.NoError(t, err)
	events.AssertExpectations(t)
}

func TestEventService_CreateEvent_Invalid(t *testing.T) {
	valid := func() model.CreateEventRequest {
		return model.CreateEventRequest{
			Name:        "Talk",
			StartTime:   "2026-05-01T10:00:00Z",
			EndTime:     "2026-05-01T11:00:00Z",
			MaxCapacity: intPtr(10),
		}
	}

	tests := []struct {
		name   string
		mutate func(*model.CreateEventRequest)
	}{
		{"blank name", func(r *model.CreateEventRequest) { r.Name = "  " }},
		{"bad start", func(r *model.CreateEventRequest) { r.StartTime = "soon" }},
		{"missing end", func(r *model.CreateEventRequest) { r.EndTime = "" }},
		{"end equals start", func(r *model.CreateEventRequest) { r.EndTime = r.StartTime }},
		{"end before start", func(r *model.CreateEventRequest) { r.EndTime = "2026-05-01T09:00:00Z" }},
		{"missing capacity", func(r *model.CreateEventRequest) { r.MaxCapacity = nil }},
		{"negative capacity", func(r *model.CreateEventRequest) { r.MaxCapacity = intPtr(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, events, _, _ := newTestService(t)
			req := valid()
			tt.mutate(&req)

			_, err := svc.CreateEvent(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestEventService_CreateEvent_ConstraintViolation(t *testing.T) {
	svc, events, _, _ := newTestService(t)
	events.On("Create", mock.Anything, mock.Anything).
		Return(nil, errors.Join(repository.ErrConstraintViolation, errors.New("ck_max_capacity_non_negative")))

	_, err := svc.CreateEvent(context.Background(), model.CreateEventRequest{
		Name:        "Talk",
		StartTime:   "2026-05-01T10:00:00Z",
		EndTime:     "2026-05-01T11:00:00Z",
		MaxCapacity: intPtr(1),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEventService_ListEvents(t *testing.T) {
	svc, events, _, _ := newTestService(t)
	page := model.Page{Limit: 20}
	events.On("ListUpcoming", mock.Anything, mock.AnythingOfType("time.Time"), page).
		Return([]model.Event{{ID: "a"}}, nil)
	events.On("ListAll", mock.Anything, page).
		Return([]model.Event{{ID: "a"}, {ID: "b"}}, nil)

	upcoming, err := svc.ListEvents(context.Background(), model.ListEventsParams{Upcoming: true, Page: page})
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)

	all, err := svc.ListEvents(context.Background(), model.ListEventsParams{Page: page})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	events.AssertExpectations(t)
}

func TestEventService_ListEvents_InvalidPage(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	for _, p := range []model.Page{{Limit: -1}, {Limit: MaxEventLimit + 1}, {Limit: 10, Offset: -1}} {
		_, err := svc.ListEvents(context.Background(), model.ListEventsParams{Page: p})
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", p)
	}
}

func TestEventService_GetEvent(t *testing.T) {
	svc, events, _, _ := newTestService(t)
	id := uuid.NewString()
	missing := uuid.NewString()
	events.On("GetByID", mock.Anything, id).Return(&model.Event{ID: id}, nil)
	events.On("GetByID", mock.Anything, missing).Return(nil, repository.ErrNotFound)

	got, err := svc.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = svc.GetEvent(context.Background(), missing)
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = svc.GetEvent(context.Background(), "42")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventService_ListAttendees(t *testing.T) {
	svc, events, attendees, _ := newTestService(t)
	id := uuid.NewString()
	page := model.Page{Limit: 100}
	events.On("GetByID", mock.Anything, id).Return(&model.Event{ID: id}, nil)
	attendees.On("ListByEvent", mock.Anything, id, page).
		Return([]model.Attendee{{ID: "x", EventID: id}}, nil)

	got, err := svc.ListAttendees(context.Background(), id, page)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.ListAttendees(context.Background(), id, model.Page{Limit: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ListAttendees(context.Background(), "nope", page)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventService_Register(t *testing.T) {
	svc, _, _, registrar := newTestService(t)
	id := uuid.NewString()
	registrar.On("Register", mock.Anything, id, "Asha", "Asha@Example.com").
		Return(&model.Attendee{ID: "a1"}, nil)

	got, err := svc.Register(context.Background(), id, model.RegisterRequest{
		Name:  " Asha ",
		Email: " Asha@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	registrar.AssertExpectations(t)
}

func TestEventService_Register_PassesRejectionThrough(t *testing.T) {
	svc, _, _, registrar := newTestService(t)
	registrar.On("Register", mock.Anything, "e1", "A", "a@x.com").Return(nil, ErrEventFull)

	_, err := svc.Register(context.Background(), "e1", model.RegisterRequest{Name: "A", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrEventFull)
}

func TestEventService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  model.RegisterRequest
	}{
		{"blank name", model.RegisterRequest{Name: " ", Email: "a@x.com"}},
		{"blank email", model.RegisterRequest{Name: "A", Email: ""}},
		{"no at sign", model.RegisterRequest{Name: "A", Email: "ax.com"}},
		{"no domain dot", model.RegisterRequest{Name: "A", Email: "a@localhost"}},
		{"display name form", model.RegisterRequest{Name: "A", Email: "A <a@x.com>"}},
		{"two at signs", model.RegisterRequest{Name: "A", Email: "a@@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, registrar := newTestService(t)
			_, err := svc.Register(context.Background(), uuid.NewString(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			registrar.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
