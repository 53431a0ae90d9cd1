package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"turnero/internal/model"
)

const bookingColumns = `id, practitioner_id, patient_id, start_time, end_time, duration,
	status, reason, notes, cancellation_reason, cancelled_by, cancelled_at,
	rescheduled_from, rescheduled_to, rescheduling_reason, created_by, version, created_at, updated_at`

const activeStatuses = `('scheduled', 'confirmed', 'in_progress')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var reason, notes, cancelReason, cancelledBy, reschedFrom, reschedTo, reschedReason, createdBy sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.PractitionerID, &b.PatientID, &b.StartTime, &b.EndTime, &b.Duration,
		&b.Status, &reason, &notes, &cancelReason, &cancelledBy, &cancelledAt,
		&reschedFrom, &reschedTo, &reschedReason, &createdBy, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Reason = reason.String
	b.Notes = notes.String
	b.CancellationReason = cancelReason.String
	b.CancelledBy = cancelledBy.String
	b.RescheduledFrom = reschedFrom.String
	b.RescheduledTo = reschedTo.String
	b.ReschedulingReason = reschedReason.String
	b.CreatedBy = createdBy.String
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}

// InsertBooking inserts a booking after re-checking for overlaps inside the
// transaction. Returns ErrConflict if an active booking overlaps.
func (db *DB) InsertBooking(ctx context.Context, b *model.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertBookingTx(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

func insertBookingTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE practitioner_id = ?
		AND start_time < ? AND end_time > ?
		AND status IN `+activeStatuses,
		b.PractitionerID, b.EndTime, b.StartTime,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if count > 0 {
		return ErrConflict
	}

	now := time.Now()
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (
			id, practitioner_id, patient_id, start_time, end_time, duration,
			status, reason, notes, rescheduled_from, rescheduling_reason,
			created_by, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PractitionerID, b.PatientID, b.StartTime, b.EndTime, b.Duration,
		b.Status, b.Reason, b.Notes, nullable(b.RescheduledFrom), nullable(b.ReschedulingReason),
		b.CreatedBy, b.Version, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetBooking returns a booking by ID or ErrNotFound.
func (db *DB) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// GetActiveBookings returns a practitioner's active bookings whose start time
// falls within [from, to), ordered by start time.
func (db *DB) GetActiveBookings(ctx context.Context, practitionerID int64, from, to time.Time) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE practitioner_id = ?
		AND start_time >= ? AND start_time < ?
		AND status IN `+activeStatuses+`
		ORDER BY start_time`,
		practitionerID, from, to,
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListBookingsByPatient returns a patient's bookings, newest first.
func (db *DB) ListBookingsByPatient(ctx context.Context, patientID int64, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE patient_id = ?
		ORDER BY start_time DESC
		LIMIT ?`,
		patientID, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListTerminalBookings returns completed, cancelled, no-show and rescheduled
// bookings within the range, for audit export.
func (db *DB) ListTerminalBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE start_time >= ? AND start_time < ?
		AND status NOT IN `+activeStatuses+`
		ORDER BY start_time`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// UpdateBookingStatus applies a status transition with an optimistic version
// check. Returns ErrConcurrentModification if the version moved underneath.
func (db *DB) UpdateBookingStatus(ctx context.Context, id string, expectedVersion int64, upd model.StatusUpdate) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET
			status = ?,
			cancellation_reason = COALESCE(?, cancellation_reason),
			cancelled_by = COALESCE(?, cancelled_by),
			cancelled_at = COALESCE(?, cancelled_at),
			rescheduled_to = COALESCE(?, rescheduled_to),
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`,
		upd.Status, nullable(upd.CancellationReason), nullable(upd.CancelledBy),
		upd.CancelledAt, nullable(upd.RescheduledTo), time.Now(), id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return db.statusUpdateFailure(ctx, id)
	}
	return nil
}

// statusUpdateFailure distinguishes a missing row from a version mismatch.
func (db *DB) statusUpdateFailure(ctx context.Context, id string) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConcurrentModification
}

// RescheduleBooking atomically marks the old booking rescheduled and inserts
// the replacement. The overlap check for the new slot runs in the same
// transaction.
func (db *DB) RescheduleBooking(ctx context.Context, oldID string, oldVersion int64, newBooking *model.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET
			status = ?, rescheduled_to = ?, rescheduling_reason = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status IN ('scheduled', 'confirmed')`,
		model.StatusRescheduled, newBooking.ID, nullable(newBooking.ReschedulingReason),
		time.Now(), oldID, oldVersion,
	)
	if err != nil {
		return fmt.Errorf("mark rescheduled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrentModification
	}

	newBooking.RescheduledFrom = oldID
	if err := insertBookingTx(ctx, tx, newBooking); err != nil {
		return err
	}
	return tx.Commit()
}

// CountActiveOnDate counts a practitioner's active bookings on a calendar day.
func (db *DB) CountActiveOnDate(ctx context.Context, practitionerID int64, date time.Time) (int, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE practitioner_id = ?
		AND start_time >= ? AND start_time < ?
		AND status IN `+activeStatuses,
		practitionerID, startOfDay, endOfDay,
	).Scan(&count)
	return count, err
}

// CountByStatus returns booking counts per status for starts within [from, to).
// A practitionerID of 0 counts across all practitioners.
func (db *DB) CountByStatus(ctx context.Context, practitionerID int64, from, to time.Time) (map[model.Status]int, error) {
	query := `
		SELECT status, COUNT(*) FROM bookings
		WHERE start_time >= ? AND start_time < ?`
	args := []any{from, to}
	if practitionerID > 0 {
		query += ` AND practitioner_id = ?`
		args = append(args, practitionerID)
	}
	query += ` GROUP BY status`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DeleteOldBookings removes terminal bookings that ended before the cutoff.
func (db *DB) DeleteOldBookings(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM bookings
		WHERE end_time < ? AND status NOT IN `+activeStatuses,
		before,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
