// Package audit produces monthly Excel exports of finished bookings and
// purges records past the retention period.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"turnero/internal/model"
)

// Config holds configuration for the audit service.
type Config struct {
	// ExportPath is the directory export files are written to.
	// Default: data/audit.
	ExportPath string

	// Retention is how long terminal bookings are kept. Default: one year.
	Retention time.Duration

	// ExportOnStart runs an export immediately on Start.
	ExportOnStart bool
}

// Store is the persistence surface the audit service needs.
type Store interface {
	ListTerminalBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	DeleteOldBookings(ctx context.Context, before time.Time) (int64, error)
	CleanupReminders(ctx context.Context, before time.Time) (int64, error)
}

// Service runs monthly exports and retention cleanup.
type Service struct {
	config  Config
	store   Store
	logger  zerolog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates the audit service.
func NewService(config Config, store Store, logger zerolog.Logger) *Service {
	if config.ExportPath == "" {
		config.ExportPath = "data/audit"
	}
	if config.Retention <= 0 {
		config.Retention = 365 * 24 * time.Hour
	}
	return &Service{
		config: config,
		store:  store,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the monthly schedule.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		go s.RunExportAndCleanup()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Str("export_path", s.config.ExportPath).
		Dur("retention", s.config.Retention).
		Msg("Audit service started")
}

// Stop halts the schedule.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := nextFirstOfMonth(time.Now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.RunExportAndCleanup()
			nextRun = nextFirstOfMonth(time.Now())
			timer.Reset(time.Until(nextRun))
		}
	}
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup exports the previous month and then applies retention.
// A failed export skips the cleanup so records are never purged unexported.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.ExportMonth(ctx, time.Now().AddDate(0, -1, 0)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data, skipping cleanup")
		return
	}
	if err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cleanup old data")
	}
}

// ExportMonth writes the terminal bookings of the given month to an xlsx
// file and returns its path. No file is written for an empty month.
func (s *Service) ExportMonth(ctx context.Context, month time.Time) (string, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	to := from.AddDate(0, 1, 0)

	bookings, err := s.store.ListTerminalBookings(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list bookings: %w", err)
	}
	if len(bookings) == 0 {
		s.logger.Info().Str("month", from.Format("2006-01")).Msg("No bookings to export")
		return "", nil
	}

	f, err := writeWorkbook(bookings)
	if err != nil {
		return "", fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(s.config.ExportPath, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.config.ExportPath, fmt.Sprintf("bookings_%s.xlsx", from.Format("2006-01")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	s.logger.Info().Str("path", path).Int("bookings", len(bookings)).Msg("Audit export written")
	return path, nil
}

// Cleanup deletes terminal bookings and reminder records past retention.
func (s *Service) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.Retention)

	deleted, err := s.store.DeleteOldBookings(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete bookings: %w", err)
	}
	reminders, err := s.store.CleanupReminders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete reminders: %w", err)
	}

	if deleted > 0 || reminders > 0 {
		s.logger.Info().
			Int64("bookings", deleted).
			Int64("reminders", reminders).
			Msg("Retention cleanup done")
	}
	return nil
}
