// Command seed resets the database to a small set of sample events and
// attendees for local development.
package main

import (
	"context"
	"os"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/database"
	"github.com/Shivanand-hulikatti/event-registration/internal/logger"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info"}).Error("load config", zap.Error(err))
		os.Exit(1)
	}
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name + "-seed",
		Development: true,
	})
	defer func() { _ = log.Sync() }()

	if err := seed(context.Background(), cfg, log); err != nil {
		log.Error("seed failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("sample data inserted")
}

func strPtr(s string) *string { return &s }

func seed(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.Migrate(pool, log); err != nil {
		return err
	}

	events := repository.NewEventRepository(pool)
	if err := events.DeleteAll(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	conference, err := events.Create(ctx, model.Event{
		Name:        "Tech Conference 2025",
		Location:    strPtr("Bangalore"),
		StartTime:   now.Add(3 * 24 * time.Hour),
		EndTime:     now.Add(3*24*time.Hour + 8*time.Hour),
		MaxCapacity: 100,
	})
	if err != nil {
		return err
	}
	meetup, err := events.Create(ctx, model.Event{
		Name:        "Startup Meetup",
		Location:    strPtr("Mumbai"),
		StartTime:   now.Add(7 * 24 * time.Hour),
		EndTime:     now.Add(7*24*time.Hour + 6*time.Hour),
		MaxCapacity: 50,
	})
	if err != nil {
		return err
	}

	admission := service.NewAdmission(
		repository.NewStore(pool, cfg.Registration.LockTimeout),
		service.AdmissionConfig{MaxRetries: cfg.Registration.MaxRetries, RetryBackoff: cfg.Registration.RetryBackoff},
		log,
		nil,
	)
	attendees := []struct {
		eventID, name, email string
	}{
		{conference.ID, "Alice", "alice@example.com"},
		{conference.ID, "Bob", "bob@example.com"},
		{meetup.ID, "Charlie", "charlie@example.com"},
	}
	for _, a := range attendees {
		if _, err := admission.Register(ctx, a.eventID, a.name, a.email); err != nil {
			return err
		}
	}

	log.Info("seeded",
		zap.Int("events", 2),
		zap.Int("attendees", len(attendees)),
	)
	return nil
}
