package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"turnero/internal/model"
)

// SaveAvailability persists a practitioner's full template, replacing any
// existing rules and exceptions in one transaction.
func (db *DB) SaveAvailability(ctx context.Context, tmpl *model.AvailabilityTemplate) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO availability_templates (
			practitioner_id, slot_duration, buffer_minutes,
			max_bookings_per_day, booking_horizon_days, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(practitioner_id) DO UPDATE SET
			slot_duration = excluded.slot_duration,
			buffer_minutes = excluded.buffer_minutes,
			max_bookings_per_day = excluded.max_bookings_per_day,
			booking_horizon_days = excluded.booking_horizon_days,
			updated_at = excluded.updated_at`,
		tmpl.PractitionerID, tmpl.SlotDuration, tmpl.BufferMinutes,
		tmpl.MaxBookingsPerDay, tmpl.BookingHorizonDays, now,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM availability_rules WHERE practitioner_id = ?", tmpl.PractitionerID,
	); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for day, rule := range tmpl.WeeklyRules {
		windows, err := json.Marshal(rule.Windows)
		if err != nil {
			return fmt.Errorf("encode windows for %s: %w", day, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO availability_rules (practitioner_id, weekday, working_day, windows)
			VALUES (?, ?, ?, ?)`,
			tmpl.PractitionerID, int(day), rule.WorkingDay, string(windows),
		); err != nil {
			return fmt.Errorf("insert rule for %s: %w", day, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM availability_exceptions WHERE practitioner_id = ?", tmpl.PractitionerID,
	); err != nil {
		return fmt.Errorf("clear exceptions: %w", err)
	}
	for date, ex := range tmpl.Exceptions {
		windows, err := json.Marshal(ex.Windows)
		if err != nil {
			return fmt.Errorf("encode exception windows for %s: %w", date, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO availability_exceptions (practitioner_id, date, kind, reason, windows)
			VALUES (?, ?, ?, ?, ?)`,
			tmpl.PractitionerID, date, string(ex.Kind), ex.Reason, string(windows),
		); err != nil {
			return fmt.Errorf("insert exception for %s: %w", date, err)
		}
	}

	tmpl.UpdatedAt = now
	return tx.Commit()
}

// GetAvailability loads a practitioner's template with rules and exceptions.
func (db *DB) GetAvailability(ctx context.Context, practitionerID int64) (*model.AvailabilityTemplate, error) {
	tmpl := &model.AvailabilityTemplate{
		PractitionerID: practitionerID,
		WeeklyRules:    make(map[time.Weekday]model.WeeklyRule),
		Exceptions:     make(map[string]model.Exception),
	}

	err := db.QueryRowContext(ctx, `
		SELECT slot_duration, buffer_minutes, max_bookings_per_day, booking_horizon_days, updated_at
		FROM availability_templates WHERE practitioner_id = ?`,
		practitionerID,
	).Scan(&tmpl.SlotDuration, &tmpl.BufferMinutes, &tmpl.MaxBookingsPerDay, &tmpl.BookingHorizonDays, &tmpl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT weekday, working_day, windows FROM availability_rules WHERE practitioner_id = ?",
		practitionerID,
	)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var rule model.WeeklyRule
		var windows string
		if err := rows.Scan(&weekday, &rule.WorkingDay, &windows); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(windows), &rule.Windows); err != nil {
			return nil, fmt.Errorf("decode windows for weekday %d: %w", weekday, err)
		}
		tmpl.WeeklyRules[time.Weekday(weekday)] = rule
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exRows, err := db.QueryContext(ctx,
		"SELECT date, kind, reason, windows FROM availability_exceptions WHERE practitioner_id = ?",
		practitionerID,
	)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var date, kind, windows string
		var reason sql.NullString
		if err := exRows.Scan(&date, &kind, &reason, &windows); err != nil {
			return nil, err
		}
		ex := model.Exception{Kind: model.ExceptionKind(kind), Reason: reason.String}
		if err := json.Unmarshal([]byte(windows), &ex.Windows); err != nil {
			return nil, fmt.Errorf("decode exception windows for %s: %w", date, err)
		}
		tmpl.Exceptions[date] = ex
	}
	return tmpl, exRows.Err()
}

// SetException writes a single dated exception, replacing any existing one.
func (db *DB) SetException(ctx context.Context, practitionerID int64, date time.Time, ex model.Exception) error {
	windows, err := json.Marshal(ex.Windows)
	if err != nil {
		return fmt.Errorf("encode windows: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO availability_exceptions (practitioner_id, date, kind, reason, windows)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(practitioner_id, date) DO UPDATE SET
			kind = excluded.kind,
			reason = excluded.reason,
			windows = excluded.windows`,
		practitionerID, model.DateKey(date), string(ex.Kind), ex.Reason, string(windows),
	)
	return err
}

// RemoveException deletes the exception for a date, if any.
func (db *DB) RemoveException(ctx context.Context, practitionerID int64, date time.Time) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM availability_exceptions WHERE practitioner_id = ? AND date = ?",
		practitionerID, model.DateKey(date),
	)
	return err
}
