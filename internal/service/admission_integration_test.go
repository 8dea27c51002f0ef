package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/database"
	"github.com/Shivanand-hulikatti/event-registration/internal/logger"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type pgEnv struct {
	pool      *pgxpool.Pool
	events    *repository.EventRepository
	attendees *repository.AttendeeRepository
}

func startPostgres(t *testing.T) *pgEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "events_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	log := logger.NewNop()
	pool, err := database.NewPool(ctx, config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "postgres",
		Password:        "postgres",
		DBName:          "events_test",
		SSLMode:         "disable",
		MaxConns:        20,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
		ConnectRetries:  5,
		RetryInterval:   time.Second,
	}, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(pool, log))

	return &pgEnv{
		pool:      pool,
		events:    repository.NewEventRepository(pool),
		attendees: repository.NewAttendeeRepository(pool),
	}
}

func (e *pgEnv) admission(lockTimeout time.Duration, maxRetries int) *service.Admission {
	return service.NewAdmission(
		repository.NewStore(e.pool, lockTimeout),
		service.AdmissionConfig{MaxRetries: maxRetries, RetryBackoff: 10 * time.Millisecond},
		logger.NewNop(),
		nil,
	)
}

func (e *pgEnv) createEvent(t *testing.T, capacity int, end time.Time) string {
	t.Helper()
	ev, err := e.events.Create(context.Background(), model.Event{
		Name:        fmt.Sprintf("event-%d", time.Now().UnixNano()),
		StartTime:   end.Add(-2 * time.Hour),
		EndTime:     end,
		MaxCapacity: capacity,
	})
	require.NoError(t, err)
	return ev.ID
}

func (e *pgEnv) count(t *testing.T, eventID string) int {
	t.Helper()
	list, err := e.attendees.ListByEvent(context.Background(), eventID, model.Page{Limit: 10_000})
	require.NoError(t, err)
	return len(list)
}

// holdLock locks an event row from a separate transaction until the
// returned func is called.
func (e *pgEnv) holdLock(t *testing.T, eventID string) func() {
	t.Helper()
	ctx := context.Background()
	tx, err := e.pool.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID)
	require.NoError(t, err)
	return func() { _ = tx.Rollback(ctx) }
}

func TestAdmissionPostgres(t *testing.T) {
	env := startPostgres(t)
	future := time.Now().Add(24 * time.Hour)

	t.Run("capacity holds under concurrency", func(t *testing.T) {
		const capacity, callers = 5, 40
		eventID := env.createEvent(t, capacity, future)
		adm := env.admission(5*time.Second, 3)

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			full      atomic.Int32
		)
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, err := adm.Register(context.Background(), eventID, "user", fmt.Sprintf("u%d@example.com", i))
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, service.ErrEventFull):
					full.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(capacity), successes.Load())
		assert.Equal(t, int32(callers-capacity), full.Load())
		assert.Equal(t, capacity, env.count(t, eventID))
	})

	t.Run("duplicate email admitted once", func(t *testing.T) {
		eventID := env.createEvent(t, 100, future)
		adm := env.admission(5*time.Second, 3)

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			dups      atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := adm.Register(context.Background(), eventID, "Dup", "dup@example.com")
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, service.ErrDuplicateRegistration):
					dups.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(9), dups.Load())
		assert.Equal(t, 1, env.count(t, eventID))
	})

	t.Run("emails differing only in case are distinct", func(t *testing.T) {
		eventID := env.createEvent(t, 10, future)
		adm := env.admission(5*time.Second, 0)

		_, err := adm.Register(context.Background(), eventID, "A", "case@example.com")
		require.NoError(t, err)
		_, err = adm.Register(context.Background(), eventID, "A", "Case@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, env.count(t, eventID))
	})

	t.Run("ended event rejects without writing", func(t *testing.T) {
		eventID := env.createEvent(t, 10, time.Now().Add(-time.Hour))
		_, err := env.admission(5*time.Second, 0).Register(context.Background(), eventID, "A", "a@x.com")
		assert.ErrorIs(t, err, service.ErrEventEnded)
		assert.Zero(t, env.count(t, eventID))
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := env.admission(5*time.Second, 0).Register(context.Background(),
			"7f1c3a52-0000-4000-8000-000000000000", "A", "a@x.com")
		assert.ErrorIs(t, err, service.ErrEventNotFound)
	})

	t.Run("locked event does not block other events", func(t *testing.T) {
		eventA := env.createEvent(t, 10, future)
		eventB := env.createEvent(t, 10, future)
		adm := env.admission(5*time.Second, 0)

		release := env.holdLock(t, eventA)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := adm.Register(ctx, eventB, "B", "b@x.com")
		require.NoError(t, err)
	})

	t.Run("cancellation while waiting releases everything", func(t *testing.T) {
		eventID := env.createEvent(t, 10, future)
		adm := env.admission(5*time.Second, 0)

		release := env.holdLock(t, eventID)
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_, err := adm.Register(ctx, eventID, "A", "a@x.com")
		require.ErrorIs(t, err, service.ErrUnavailable)
		release()

		_, err = adm.Register(context.Background(), eventID, "A", "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, 1, env.count(t, eventID))
	})

	t.Run("lock timeout surfaces as unavailable", func(t *testing.T) {
		eventID := env.createEvent(t, 10, future)
		adm := env.admission(100*time.Millisecond, 1)

		release := env.holdLock(t, eventID)
		defer release()

		_, err := adm.Register(context.Background(), eventID, "A", "a@x.com")
		require.ErrorIs(t, err, service.ErrUnavailable)

		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
		assert.Equal(t, "55P03", pgErr.Code)
	})

	t.Run("unique constraint backstop", func(t *testing.T) {
		eventID := env.createEvent(t, 10, future)
		store := repository.NewStore(env.pool, time.Second)

		insert := func() error {
			return store.InTx(context.Background(), func(tx repository.Tx) error {
				_, err := tx.InsertAttendee(context.Background(), eventID, "A", "same@x.com")
				return err
			})
		}
		require.NoError(t, insert())
		assert.ErrorIs(t, insert(), repository.ErrConstraintViolation)
		assert.Equal(t, 1, env.count(t, eventID))
	})

	t.Run("capacity check constraint", func(t *testing.T) {
		_, err := env.events.Create(context.Background(), model.Event{
			Name:        "negative",
			StartTime:   future,
			EndTime:     future.Add(time.Hour),
			MaxCapacity: -1,
		})
		assert.ErrorIs(t, err, repository.ErrConstraintViolation)
	})

	t.Run("attendees listed in registration order", func(t *testing.T) {
		eventID := env.createEvent(t, 10, future)
		adm := env.admission(5*time.Second, 0)
		for _, email := range []string{"first@x.com", "second@x.com", "third@x.com"} {
			_, err := adm.Register(context.Background(), eventID, "A", email)
			require.NoError(t, err)
		}

		list, err := env.attendees.ListByEvent(context.Background(), eventID, model.Page{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "second@x.com", list[0].Email)
		assert.Equal(t, "third@x.com", list[1].Email)
	})
}
