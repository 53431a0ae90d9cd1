// Package service implements the scheduling operations: slot queries,
// booking creation with conflict control, and lifecycle transitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"turnero/internal/booking"
	"turnero/internal/database"
	"turnero/internal/events"
	"turnero/internal/metrics"
	"turnero/internal/model"
	"turnero/internal/slots"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	GetAvailability(ctx context.Context, practitionerID int64) (*model.AvailabilityTemplate, error)
	SaveAvailability(ctx context.Context, tmpl *model.AvailabilityTemplate) error
	SetException(ctx context.Context, practitionerID int64, date time.Time, ex model.Exception) error
	RemoveException(ctx context.Context, practitionerID int64, date time.Time) error

	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	GetActiveBookings(ctx context.Context, practitionerID int64, from, to time.Time) ([]model.Booking, error)
	ListBookingsByPatient(ctx context.Context, patientID int64, limit int) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBookingStatus(ctx context.Context, id string, expectedVersion int64, upd model.StatusUpdate) error
	RescheduleBooking(ctx context.Context, oldID string, oldVersion int64, newBooking *model.Booking) error
	CountActiveOnDate(ctx context.Context, practitionerID int64, date time.Time) (int, error)
	CountByStatus(ctx context.Context, practitionerID int64, from, to time.Time) (map[model.Status]int, error)
}

// EventPublisher publishes domain events after successful writes.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Scheduler coordinates availability, conflict control and the booking
// lifecycle.
type Scheduler struct {
	store     Store
	publisher EventPublisher
	lifecycle booking.Lifecycle
	locks     *practitionerLocks
	logger    zerolog.Logger
	now       func() time.Time
}

// NewScheduler builds a Scheduler with the given guard windows. A nil
// publisher disables event publication.
func NewScheduler(store Store, publisher EventPublisher, windows booking.Windows, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		lifecycle: booking.NewLifecycle(windows),
		locks:     newPractitionerLocks(),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBookingRequest carries the input for a new booking.
type CreateBookingRequest struct {
	PractitionerID int64
	PatientID      int64
	StartTime      time.Time
	Duration       int // minutes; 0 means the practitioner's slot duration
	Reason         string
	Notes          string
	CreatedBy      string
}

// CreateBooking validates the request against the practitioner's
// availability, checks conflicts and inserts the booking. The conflict
// check and insert are serialized per practitioner.
func (s *Scheduler) CreateBooking(ctx context.Context, req CreateBookingRequest) (*model.Booking, error) {
	if req.PractitionerID <= 0 {
		return nil, &ValidationError{Field: "practitioner_id", Message: "must be positive"}
	}
	if req.PatientID <= 0 {
		return nil, &ValidationError{Field: "patient_id", Message: "must be positive"}
	}

	now := s.now()
	if !req.StartTime.After(now) {
		return nil, &ValidationError{Field: "start_time", Message: "must be in the future"}
	}

	tmpl, err := s.store.GetAvailability(ctx, req.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	duration := req.Duration
	if duration == 0 {
		duration = tmpl.SlotDuration
	}
	if duration < model.MinDurationMinutes || duration > model.MaxDurationMinutes {
		return nil, &ValidationError{
			Field:   "duration",
			Message: fmt.Sprintf("must be between %d and %d minutes", model.MinDurationMinutes, model.MaxDurationMinutes),
		}
	}

	horizon := now.AddDate(0, 0, tmpl.BookingHorizonDays)
	if req.StartTime.After(horizon) {
		return nil, &OutsideAvailabilityError{
			Reason: fmt.Sprintf("start time is beyond the %d-day booking horizon", tmpl.BookingHorizonDays),
		}
	}

	end := req.StartTime.Add(time.Duration(duration) * time.Minute)
	if err := s.checkWithinWindows(tmpl, req.StartTime, end); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.PractitionerID)
	defer unlock()

	if tmpl.MaxBookingsPerDay > 0 {
		count, err := s.store.CountActiveOnDate(ctx, req.PractitionerID, req.StartTime)
		if err != nil {
			return nil, fmt.Errorf("count bookings: %w", err)
		}
		if count >= tmpl.MaxBookingsPerDay {
			return nil, ErrDailyLimit
		}
	}

	b := &model.Booking{
		ID:             uuid.NewString(),
		PractitionerID: req.PractitionerID,
		PatientID:      req.PatientID,
		StartTime:      req.StartTime,
		EndTime:        end,
		Duration:       duration,
		Status:         model.StatusScheduled,
		Reason:         req.Reason,
		Notes:          req.Notes,
		CreatedBy:      req.CreatedBy,
	}

	if err := s.store.InsertBooking(ctx, b); err != nil {
		if errors.Is(err, database.ErrConflict) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", b.ID).
		Int64("practitioner_id", b.PractitionerID).
		Time("start", b.StartTime).
		Msg("Booking created")

	s.publish(events.BookingCreated, b)
	return b, nil
}

// checkWithinWindows verifies [start, end) fits entirely inside one of the
// day's availability windows.
func (s *Scheduler) checkWithinWindows(tmpl *model.AvailabilityTemplate, start, end time.Time) error {
	if !tmpl.IsWorkingDay(start) {
		return &OutsideAvailabilityError{Reason: "not a working day"}
	}

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	startMin := int(start.Sub(day).Minutes())
	endMin := int(end.Sub(day).Minutes())
	for _, w := range tmpl.WindowsFor(start) {
		if w.Contains(startMin, endMin) {
			return nil
		}
	}
	return &OutsideAvailabilityError{Reason: "requested time is outside working hours"}
}

// QuerySlots returns the free slots for a practitioner on a date. Past dates
// and dates beyond the booking horizon yield no slots.
func (s *Scheduler) QuerySlots(ctx context.Context, practitionerID int64, date time.Time, duration int) ([]slots.Slot, error) {
	metrics.IncSlotQuery()

	tmpl, err := s.store.GetAvailability(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if duration == 0 {
		duration = tmpl.SlotDuration
	}

	now := s.now()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Before(today) || day.After(now.AddDate(0, 0, tmpl.BookingHorizonDays)) {
		return nil, nil
	}

	windows := tmpl.WindowsFor(date)
	if len(windows) == 0 {
		return nil, nil
	}

	busy, err := s.store.GetActiveBookings(ctx, practitionerID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	generated := slots.Generate(date, duration, tmpl.BufferMinutes, windows, busy)

	// Same-day queries drop slots that already started.
	if day.Equal(today) {
		filtered := generated[:0]
		for _, slot := range generated {
			if slot.StartTime.After(now) {
				filtered = append(filtered, slot)
			}
		}
		generated = filtered
	}
	return generated, nil
}

// Confirm moves a scheduled booking to confirmed.
func (s *Scheduler) Confirm(ctx context.Context, id string) (*model.Booking, error) {
	return s.transition(ctx, id, booking.EventConfirm, model.StatusUpdate{}, events.BookingConfirmed)
}

// StartVisit moves a confirmed booking to in progress.
func (s *Scheduler) StartVisit(ctx context.Context, id string) (*model.Booking, error) {
	return s.transition(ctx, id, booking.EventStart, model.StatusUpdate{}, events.BookingStarted)
}

// Complete closes out a confirmed or in-progress booking.
func (s *Scheduler) Complete(ctx context.Context, id string) (*model.Booking, error) {
	return s.transition(ctx, id, booking.EventComplete, model.StatusUpdate{}, events.BookingCompleted)
}

// Cancel cancels a booking, subject to the cancellation window.
func (s *Scheduler) Cancel(ctx context.Context, id, reason, cancelledBy string) (*model.Booking, error) {
	now := s.now()
	upd := model.StatusUpdate{
		CancellationReason: reason,
		CancelledBy:        cancelledBy,
		CancelledAt:        &now,
	}
	return s.transition(ctx, id, booking.EventCancel, upd, events.BookingCancelled)
}

// MarkNoShow marks a booking whose start time has passed as a no-show.
func (s *Scheduler) MarkNoShow(ctx context.Context, id string) (*model.Booking, error) {
	return s.transition(ctx, id, booking.EventNoShow, model.StatusUpdate{}, events.BookingNoShow)
}

func (s *Scheduler) transition(ctx context.Context, id string, ev booking.Event, upd model.StatusUpdate, eventType string) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := s.lifecycle.Next(b.Status, ev, s.now(), b.StartTime)
	if err != nil {
		return nil, err
	}

	upd.Status = next
	if err := s.store.UpdateBookingStatus(ctx, id, b.Version, upd); err != nil {
		return nil, err
	}

	b.Status = next
	b.CancellationReason = upd.CancellationReason
	b.CancelledBy = upd.CancelledBy
	b.CancelledAt = upd.CancelledAt
	b.Version++

	metrics.IncBookingTransition(string(ev))
	s.logger.Info().
		Str("booking_id", id).
		Str("event", string(ev)).
		Str("status", string(next)).
		Msg("Booking transition")

	s.publish(eventType, b)
	return b, nil
}

// Reschedule cancels the slot held by the booking and creates a replacement
// at the new time, atomically. The original becomes a terminal rescheduled
// record pointing at the replacement. A newDuration of 0 keeps the old
// duration.
func (s *Scheduler) Reschedule(ctx context.Context, id string, newStart time.Time, newDuration int, reason, createdBy string) (*model.Booking, error) {
	old, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := s.lifecycle.Next(old.Status, booking.EventReschedule, now, old.StartTime); err != nil {
		return nil, err
	}
	if !newStart.After(now) {
		return nil, &ValidationError{Field: "start_time", Message: "must be in the future"}
	}

	duration := newDuration
	if duration == 0 {
		duration = old.Duration
	}
	if duration < model.MinDurationMinutes || duration > model.MaxDurationMinutes {
		return nil, &ValidationError{
			Field:   "duration",
			Message: fmt.Sprintf("must be between %d and %d minutes", model.MinDurationMinutes, model.MaxDurationMinutes),
		}
	}

	tmpl, err := s.store.GetAvailability(ctx, old.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if newStart.After(now.AddDate(0, 0, tmpl.BookingHorizonDays)) {
		return nil, &OutsideAvailabilityError{
			Reason: fmt.Sprintf("start time is beyond the %d-day booking horizon", tmpl.BookingHorizonDays),
		}
	}

	newEnd := newStart.Add(time.Duration(duration) * time.Minute)
	if err := s.checkWithinWindows(tmpl, newStart, newEnd); err != nil {
		return nil, err
	}

	replacement := &model.Booking{
		ID:                 uuid.NewString(),
		PractitionerID:     old.PractitionerID,
		PatientID:          old.PatientID,
		StartTime:          newStart,
		EndTime:            newEnd,
		Duration:           duration,
		Status:             model.StatusScheduled,
		Reason:             old.Reason,
		Notes:              old.Notes,
		ReschedulingReason: reason,
		CreatedBy:          createdBy,
	}

	unlock := s.locks.lock(old.PractitionerID)
	defer unlock()

	if err := s.store.RescheduleBooking(ctx, old.ID, old.Version, replacement); err != nil {
		if errors.Is(err, database.ErrConflict) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncBookingTransition(string(booking.EventReschedule))
	s.logger.Info().
		Str("booking_id", old.ID).
		Str("replacement_id", replacement.ID).
		Time("new_start", newStart).
		Msg("Booking rescheduled")

	s.publish(events.BookingRescheduled, map[string]any{
		"old":         old.ID,
		"replacement": replacement,
	})
	return replacement, nil
}

// GetBooking returns a booking by ID.
func (s *Scheduler) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// PatientBookings returns a patient's booking history, newest first.
func (s *Scheduler) PatientBookings(ctx context.Context, patientID int64, limit int) ([]model.Booking, error) {
	return s.store.ListBookingsByPatient(ctx, patientID, limit)
}

// SetAvailability validates and persists a practitioner's template.
func (s *Scheduler) SetAvailability(ctx context.Context, tmpl *model.AvailabilityTemplate) error {
	if tmpl.PractitionerID <= 0 {
		return &ValidationError{Field: "practitioner_id", Message: "must be positive"}
	}
	applyTemplateDefaults(tmpl)
	if err := tmpl.Validate(); err != nil {
		return &ValidationError{Field: "availability", Message: err.Error()}
	}
	return s.store.SaveAvailability(ctx, tmpl)
}

// GetAvailability returns a practitioner's template.
func (s *Scheduler) GetAvailability(ctx context.Context, practitionerID int64) (*model.AvailabilityTemplate, error) {
	return s.store.GetAvailability(ctx, practitionerID)
}

// SetException writes a dated exception for a practitioner. Existing
// bookings on the date are unaffected.
func (s *Scheduler) SetException(ctx context.Context, practitionerID int64, date time.Time, ex model.Exception) error {
	if ex.Kind == model.ExceptionCustom && len(ex.Windows) == 0 {
		return &ValidationError{Field: "windows", Message: "custom exception needs at least one window"}
	}
	return s.store.SetException(ctx, practitionerID, date, ex)
}

// RemoveException deletes a dated exception.
func (s *Scheduler) RemoveException(ctx context.Context, practitionerID int64, date time.Time) error {
	return s.store.RemoveException(ctx, practitionerID, date)
}

// Stats returns booking counts per status for starts within [from, to).
// A practitionerID of 0 covers all practitioners.
func (s *Scheduler) Stats(ctx context.Context, practitionerID int64, from, to time.Time) (map[model.Status]int, error) {
	return s.store.CountByStatus(ctx, practitionerID, from, to)
}

func (s *Scheduler) publish(eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func applyTemplateDefaults(tmpl *model.AvailabilityTemplate) {
	if tmpl.SlotDuration == 0 {
		tmpl.SlotDuration = 30
	}
	if tmpl.BufferMinutes == 0 {
		tmpl.BufferMinutes = 5
	}
	if tmpl.MaxBookingsPerDay == 0 {
		tmpl.MaxBookingsPerDay = 12
	}
	if tmpl.BookingHorizonDays == 0 {
		tmpl.BookingHorizonDays = 30
	}
}
