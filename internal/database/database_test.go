package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnero/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newBooking(practitionerID int64, start time.Time, minutes int) *model.Booking {
	return &model.Booking{
		ID:             uuid.NewString(),
		PractitionerID: practitionerID,
		PatientID:      100,
		StartTime:      start,
		EndTime:        start.Add(time.Duration(minutes) * time.Minute),
		Duration:       minutes,
		Status:         model.StatusScheduled,
		CreatedBy:      "patient",
	}
}

func TestAvailabilityRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	tmpl := &model.AvailabilityTemplate{
		PractitionerID: 7,
		WeeklyRules: map[time.Weekday]model.WeeklyRule{
			time.Monday: {WorkingDay: true, Windows: []model.TimeWindow{{Start: 540, End: 720}, {Start: 840, End: 1080}}},
			time.Sunday: {WorkingDay: false},
		},
		SlotDuration:       30,
		BufferMinutes:      5,
		MaxBookingsPerDay:  12,
		BookingHorizonDays: 30,
	}
	tmpl.AddException(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		model.Exception{Kind: model.ExceptionVacation, Reason: "leave"})

	require.NoError(t, db.SaveAvailability(ctx, tmpl))

	got, err := db.GetAvailability(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 30, got.SlotDuration)
	require.Len(t, got.WeeklyRules[time.Monday].Windows, 2)
	assert.Equal(t, 540, got.WeeklyRules[time.Monday].Windows[0].Start)
	assert.False(t, got.WeeklyRules[time.Sunday].WorkingDay)
	require.Contains(t, got.Exceptions, "2025-03-10")
	assert.Equal(t, model.ExceptionVacation, got.Exceptions["2025-03-10"].Kind)

	// Saving again replaces rules rather than accumulating them.
	tmpl.WeeklyRules = map[time.Weekday]model.WeeklyRule{
		time.Friday: {WorkingDay: true, Windows: []model.TimeWindow{{Start: 600, End: 960}}},
	}
	require.NoError(t, db.SaveAvailability(ctx, tmpl))
	got, err = db.GetAvailability(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, got.WeeklyRules, 1)
}

func TestGetAvailabilityNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetAvailability(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertBookingConflict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertBooking(ctx, newBooking(1, start, 30)))

	// Exact same slot.
	err := db.InsertBooking(ctx, newBooking(1, start, 30))
	assert.ErrorIs(t, err, ErrConflict)

	// Partial overlap.
	err = db.InsertBooking(ctx, newBooking(1, start.Add(15*time.Minute), 30))
	assert.ErrorIs(t, err, ErrConflict)

	// Back-to-back is allowed.
	require.NoError(t, db.InsertBooking(ctx, newBooking(1, start.Add(30*time.Minute), 30)))

	// Other practitioner is unaffected.
	require.NoError(t, db.InsertBooking(ctx, newBooking(2, start, 30)))
}

func TestCancelledBookingFreesSlot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	b := newBooking(1, start, 30)
	require.NoError(t, db.InsertBooking(ctx, b))

	cancelledAt := time.Now()
	require.NoError(t, db.UpdateBookingStatus(ctx, b.ID, 1, model.StatusUpdate{
		Status:             model.StatusCancelled,
		CancellationReason: "patient request",
		CancelledBy:        "patient",
		CancelledAt:        &cancelledAt,
	}))

	require.NoError(t, db.InsertBooking(ctx, newBooking(1, start, 30)))
}

func TestUpdateBookingStatusVersionCheck(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := newBooking(1, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), 30)
	require.NoError(t, db.InsertBooking(ctx, b))

	require.NoError(t, db.UpdateBookingStatus(ctx, b.ID, 1, model.StatusUpdate{Status: model.StatusConfirmed}))

	// Stale version is rejected.
	err := db.UpdateBookingStatus(ctx, b.ID, 1, model.StatusUpdate{Status: model.StatusCancelled})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	// Unknown booking is reported as not found.
	err = db.UpdateBookingStatus(ctx, "missing", 1, model.StatusUpdate{Status: model.StatusCancelled})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestRescheduleBooking(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	oldStart := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	old := newBooking(1, oldStart, 30)
	require.NoError(t, db.InsertBooking(ctx, old))

	replacement := newBooking(1, oldStart.Add(2*time.Hour), 30)
	replacement.ReschedulingReason = "clinic closed"
	require.NoError(t, db.RescheduleBooking(ctx, old.ID, 1, replacement))

	gotOld, err := db.GetBooking(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRescheduled, gotOld.Status)
	assert.Equal(t, replacement.ID, gotOld.RescheduledTo)
	assert.Equal(t, "clinic closed", gotOld.ReschedulingReason)

	gotNew, err := db.GetBooking(ctx, replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, gotNew.Status)
	assert.Equal(t, old.ID, gotNew.RescheduledFrom)
	assert.Equal(t, "clinic closed", gotNew.ReschedulingReason)

	// The vacated slot is bookable again.
	require.NoError(t, db.InsertBooking(ctx, newBooking(1, oldStart, 30)))
}

func TestRescheduleConflictRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	oldStart := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	takenStart := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)

	old := newBooking(1, oldStart, 30)
	require.NoError(t, db.InsertBooking(ctx, old))
	require.NoError(t, db.InsertBooking(ctx, newBooking(1, takenStart, 30)))

	err := db.RescheduleBooking(ctx, old.ID, 1, newBooking(1, takenStart, 30))
	assert.ErrorIs(t, err, ErrConflict)

	// The old booking is untouched.
	gotOld, err := db.GetBooking(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, gotOld.Status)
	assert.Equal(t, int64(1), gotOld.Version)
}

func TestCountActiveOnDate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertBooking(ctx, newBooking(1, day.Add(9*time.Hour), 30)))
	require.NoError(t, db.InsertBooking(ctx, newBooking(1, day.Add(10*time.Hour), 30)))
	require.NoError(t, db.InsertBooking(ctx, newBooking(1, day.Add(33*time.Hour), 30))) // next day

	count, err := db.CountActiveOnDate(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReminderIdempotency(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	b := newBooking(1, start, 30)
	require.NoError(t, db.InsertBooking(ctx, b))

	due, err := db.DueForReminder(ctx, start.Add(-time.Hour), start.Add(time.Hour), 24)
	require.NoError(t, err)
	require.Len(t, due, 1)

	inserted, err := db.MarkReminderSent(ctx, b.ID, 24, "email")
	require.NoError(t, err)
	assert.True(t, inserted)

	// Second attempt is a no-op.
	inserted, err = db.MarkReminderSent(ctx, b.ID, 24, "email")
	require.NoError(t, err)
	assert.False(t, inserted)

	due, err = db.DueForReminder(ctx, start.Add(-time.Hour), start.Add(time.Hour), 24)
	require.NoError(t, err)
	assert.Empty(t, due)

	// A different offset is still due.
	due, err = db.DueForReminder(ctx, start.Add(-time.Hour), start.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDeleteOldBookings(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	old := time.Now().AddDate(-1, 0, 0)

	b := newBooking(1, old, 30)
	require.NoError(t, db.InsertBooking(ctx, b))
	require.NoError(t, db.UpdateBookingStatus(ctx, b.ID, 1, model.StatusUpdate{Status: model.StatusCompleted}))

	// Active bookings are never purged, regardless of age.
	keep := newBooking(1, old.Add(2*time.Hour), 30)
	require.NoError(t, db.InsertBooking(ctx, keep))

	deleted, err := db.DeleteOldBookings(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = db.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetBooking(ctx, keep.ID)
	assert.NoError(t, err)
}

func TestDeleteOldBookingsCascadesReminders(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	old := time.Now().AddDate(-1, 0, 0)

	b := newBooking(1, old, 30)
	require.NoError(t, db.InsertBooking(ctx, b))
	_, err := db.MarkReminderSent(ctx, b.ID, 24, "email")
	require.NoError(t, err)
	require.NoError(t, db.UpdateBookingStatus(ctx, b.ID, 1, model.StatusUpdate{Status: model.StatusCompleted}))

	deleted, err := db.DeleteOldBookings(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	// The reminder rows go with the booking.
	sent, err := db.ReminderSent(ctx, b.ID, 24)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestCountByStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	first := newBooking(1, start, 30)
	require.NoError(t, db.InsertBooking(ctx, first))
	second := newBooking(2, start, 30)
	require.NoError(t, db.InsertBooking(ctx, second))
	require.NoError(t, db.UpdateBookingStatus(ctx, second.ID, 1, model.StatusUpdate{Status: model.StatusConfirmed}))

	from := start.Add(-time.Hour)
	to := start.Add(time.Hour)

	all, err := db.CountByStatus(ctx, 0, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, all[model.StatusScheduled])
	assert.Equal(t, 1, all[model.StatusConfirmed])

	one, err := db.CountByStatus(ctx, 1, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, one[model.StatusScheduled])
	assert.Zero(t, one[model.StatusConfirmed])
}
