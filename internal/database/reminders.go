package database

import (
	"context"
	"time"

	"turnero/internal/model"
)

// DueForReminder returns active bookings starting within [from, to) that have
// no reminder recorded for the given offset.
func (db *DB) DueForReminder(ctx context.Context, from, to time.Time, offsetHours int) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.start_time >= ? AND b.start_time < ?
		AND b.status IN ('scheduled', 'confirmed')
		AND NOT EXISTS (
			SELECT 1 FROM booking_reminders r
			WHERE r.booking_id = b.id AND r.offset_hours = ?
		)
		ORDER BY b.start_time`,
		from, to, offsetHours,
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// MarkReminderSent records a dispatched reminder. Returns false if a record
// for this booking and offset already exists.
func (db *DB) MarkReminderSent(ctx context.Context, bookingID string, offsetHours int, channel string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO booking_reminders (booking_id, offset_hours, channel)
		VALUES (?, ?, ?)`,
		bookingID, offsetHours, channel,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReminderSent reports whether a reminder was already dispatched for the
// booking at the given offset.
func (db *DB) ReminderSent(ctx context.Context, bookingID string, offsetHours int) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM booking_reminders WHERE booking_id = ? AND offset_hours = ?",
		bookingID, offsetHours,
	).Scan(&count)
	return count > 0, err
}

// CleanupReminders removes reminder records older than the cutoff.
func (db *DB) CleanupReminders(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM booking_reminders WHERE sent_at < ?", before,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
