// Package reminders runs the periodic sweep that dispatches booking
// reminders. A reminder is recorded only after its dispatch succeeds, so a
// failed dispatch is retried on the next sweep and a successful one is
// never repeated.
package reminders

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"turnero/internal/model"
)

// Config holds configuration for the reminder sweeper.
type Config struct {
	// SweepInterval is how often to scan for due reminders. Default: 30 minutes.
	SweepInterval time.Duration

	// OffsetsHours are the reminder lead times before a booking starts.
	// Default: 24 and 2 hours.
	OffsetsHours []int

	// MatchWindow is the tolerance around each offset when matching
	// bookings to a sweep. Default: 15 minutes either side.
	MatchWindow time.Duration

	// Channel names the delivery channel recorded with each reminder.
	// Default: email.
	Channel string

	// DispatchTimeout bounds a single dispatch attempt. Default: 30 seconds.
	DispatchTimeout time.Duration

	// MaxConcurrent limits parallel dispatches. Default: 10.
	MaxConcurrent int
}

// DefaultConfig returns the standard sweeper settings.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   30 * time.Minute,
		OffsetsHours:    []int{24, 2},
		MatchWindow:     15 * time.Minute,
		Channel:         "email",
		DispatchTimeout: 30 * time.Second,
		MaxConcurrent:   10,
	}
}

// Store is the persistence surface the sweeper needs.
type Store interface {
	DueForReminder(ctx context.Context, from, to time.Time, offsetHours int) ([]model.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID string, offsetHours int, channel string) (bool, error)
}

// Notifier delivers a reminder for one booking.
type Notifier interface {
	SendReminder(ctx context.Context, b model.Booking, offsetHours int) error
}

// Sweeper scans for bookings approaching their start time and dispatches
// reminders at the configured offsets.
type Sweeper struct {
	config   Config
	store    Store
	notifier Notifier
	lock     *SweepLock
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	running sync.Mutex // held for the duration of a sweep
	stopCh  chan struct{}
	stopWg  sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewSweeper builds a sweeper. lock and metrics may be nil.
func NewSweeper(config Config, store Store, notifier Notifier, lock *SweepLock, metrics *Metrics, logger zerolog.Logger) *Sweeper {
	def := DefaultConfig()
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if len(config.OffsetsHours) == 0 {
		config.OffsetsHours = def.OffsetsHours
	}
	if config.MatchWindow <= 0 {
		config.MatchWindow = def.MatchWindow
	}
	if config.Channel == "" {
		config.Channel = def.Channel
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = def.DispatchTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}

	return &Sweeper{
		config:   config,
		store:    store,
		notifier: notifier,
		lock:     lock,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.stopWg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("interval", s.config.SweepInterval).
		Ints("offsets_hours", s.config.OffsetsHours).
		Msg("Reminder sweeper started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.stopWg.Wait()
	s.logger.Info().Msg("Reminder sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.stopWg.Done()

	s.RunSweep(context.Background())

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunSweep(context.Background())
		}
	}
}

// RunSweep executes one sweep. Overlapping runs are skipped: in-process via
// a mutex, across processes via the redis lock. Returns the number of
// reminders dispatched.
func (s *Sweeper) RunSweep(ctx context.Context) int {
	if !s.running.TryLock() {
		if s.metrics != nil {
			s.metrics.SweepsSkipped.Inc()
		}
		return 0
	}
	defer s.running.Unlock()

	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Sweep lock unavailable, running without it")
	} else if !acquired {
		if s.metrics != nil {
			s.metrics.SweepsSkipped.Inc()
		}
		s.logger.Debug().Msg("Sweep skipped, lock held elsewhere")
		return 0
	} else {
		defer s.lock.Release(ctx)
	}

	start := s.now()
	sent := 0
	for _, offset := range s.config.OffsetsHours {
		sent += s.sweepOffset(ctx, offset)
	}

	if s.metrics != nil {
		s.metrics.SweepsTotal.Inc()
		s.metrics.SweepDuration.Observe(s.now().Sub(start).Seconds())
	}
	if sent > 0 {
		s.logger.Info().Int("sent", sent).Msg("Sweep dispatched reminders")
	}
	return sent
}

func (s *Sweeper) sweepOffset(ctx context.Context, offsetHours int) int {
	now := s.now()
	target := now.Add(time.Duration(offsetHours) * time.Hour)
	from := target.Add(-s.config.MatchWindow)
	to := target.Add(s.config.MatchWindow)

	due, err := s.store.DueForReminder(ctx, from, to, offsetHours)
	if err != nil {
		s.logger.Error().Err(err).Int("offset_hours", offsetHours).Msg("Failed to query due reminders")
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	sent := 0

	for _, b := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(b model.Booking) {
			defer wg.Done()
			defer func() { <-sem }()

			if s.dispatch(ctx, b, offsetHours) {
				mu.Lock()
				sent++
				mu.Unlock()
			}
		}(b)
	}
	wg.Wait()
	return sent
}

// dispatch sends one reminder and records it. The record is written only
// after the send succeeds; a concurrent sweep that recorded it first makes
// this send a harmless duplicate of a delivered reminder, not a lost one.
func (s *Sweeper) dispatch(ctx context.Context, b model.Booking, offsetHours int) bool {
	sendCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	if err := s.notifier.SendReminder(sendCtx, b, offsetHours); err != nil {
		if s.metrics != nil {
			s.metrics.DispatchFailures.Inc()
		}
		s.logger.Error().Err(err).
			Str("booking_id", b.ID).
			Int("offset_hours", offsetHours).
			Msg("Failed to dispatch reminder")
		return false
	}

	inserted, err := s.store.MarkReminderSent(ctx, b.ID, offsetHours, s.config.Channel)
	if err != nil {
		// The reminder went out; losing the record risks one duplicate on
		// the next sweep, which the unique index bounds to a single retry.
		s.logger.Error().Err(err).
			Str("booking_id", b.ID).
			Msg("Failed to record dispatched reminder")
		return true
	}
	if !inserted {
		if s.metrics != nil {
			s.metrics.DuplicatesSuppressed.Inc()
		}
		return true
	}

	if s.metrics != nil {
		s.metrics.RemindersSentTotal.WithLabelValues(offsetLabel(offsetHours)).Inc()
	}
	s.logger.Info().
		Str("booking_id", b.ID).
		Int("offset_hours", offsetHours).
		Time("start", b.StartTime).
		Msg("Reminder sent")
	return true
}

func offsetLabel(offsetHours int) string {
	return strconv.Itoa(offsetHours)
}
