package model

import (
	"fmt"
	"time"
)

const dateKeyLayout = "2006-01-02"

// DateKey normalizes a date to the key used for exception lookups.
func DateKey(date time.Time) string {
	return date.Format(dateKeyLayout)
}

// TimeWindow is a contiguous time-of-day interval, in minutes from midnight.
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// On materializes the window on a concrete date.
func (w TimeWindow) On(date time.Time) (time.Time, time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return day.Add(time.Duration(w.Start) * time.Minute), day.Add(time.Duration(w.End) * time.Minute)
}

// Contains reports whether [startMin, endMin) fits entirely inside the window.
func (w TimeWindow) Contains(startMin, endMin int) bool {
	return startMin >= w.Start && endMin <= w.End
}

// WeeklyRule describes a practitioner's regular hours for one weekday.
type WeeklyRule struct {
	WorkingDay bool         `json:"working_day"`
	Windows    []TimeWindow `json:"windows"`
}

// ExceptionKind classifies a dated schedule exception.
type ExceptionKind string

const (
	ExceptionBlocked  ExceptionKind = "blocked"
	ExceptionCustom   ExceptionKind = "custom"
	ExceptionVacation ExceptionKind = "vacation"
)

// Exception overrides the weekly rule for a single calendar date.
// Windows is only meaningful for ExceptionCustom.
type Exception struct {
	Kind    ExceptionKind `json:"kind"`
	Reason  string        `json:"reason,omitempty"`
	Windows []TimeWindow  `json:"windows,omitempty"`
}

// AvailabilityTemplate is a practitioner's recurring weekly schedule plus
// dated exceptions. At most one exception exists per date; writing a second
// one replaces the first.
type AvailabilityTemplate struct {
	PractitionerID     int64                      `json:"practitioner_id"`
	WeeklyRules        map[time.Weekday]WeeklyRule `json:"weekly_rules"`
	Exceptions         map[string]Exception        `json:"exceptions"`
	SlotDuration       int                        `json:"slot_duration"`
	BufferMinutes      int                        `json:"buffer_minutes"`
	MaxBookingsPerDay  int                        `json:"max_bookings_per_day"`
	BookingHorizonDays int                        `json:"booking_horizon_days"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// IsWorkingDay reports whether the practitioner accepts bookings on a date.
// An exception overrides the weekly rule: blocked and vacation force false,
// a custom exception forces true.
func (t *AvailabilityTemplate) IsWorkingDay(date time.Time) bool {
	if ex, ok := t.Exceptions[DateKey(date)]; ok {
		return ex.Kind == ExceptionCustom
	}
	rule, ok := t.WeeklyRules[date.Weekday()]
	return ok && rule.WorkingDay
}

// WindowsFor returns the availability windows effective on a date.
// A custom exception replaces the day's windows entirely; blocked and
// vacation yield no windows.
func (t *AvailabilityTemplate) WindowsFor(date time.Time) []TimeWindow {
	if ex, ok := t.Exceptions[DateKey(date)]; ok {
		if ex.Kind != ExceptionCustom {
			return nil
		}
		return ex.Windows
	}
	rule, ok := t.WeeklyRules[date.Weekday()]
	if !ok || !rule.WorkingDay {
		return nil
	}
	return rule.Windows
}

// AddException sets the exception for a date, replacing any existing one.
func (t *AvailabilityTemplate) AddException(date time.Time, ex Exception) {
	if t.Exceptions == nil {
		t.Exceptions = make(map[string]Exception)
	}
	t.Exceptions[DateKey(date)] = ex
}

// RemoveException clears the exception for a date.
func (t *AvailabilityTemplate) RemoveException(date time.Time) {
	delete(t.Exceptions, DateKey(date))
}

// Validate checks the template invariants: every window has start < end
// within the day, and each day's windows are sorted and non-overlapping.
func (t *AvailabilityTemplate) Validate() error {
	for day, rule := range t.WeeklyRules {
		if err := validateWindows(rule.Windows); err != nil {
			return fmt.Errorf("weekly rule %s: %w", day, err)
		}
	}
	for key, ex := range t.Exceptions {
		if ex.Kind != ExceptionCustom {
			continue
		}
		if err := validateWindows(ex.Windows); err != nil {
			return fmt.Errorf("exception %s: %w", key, err)
		}
	}
	if t.SlotDuration < MinDurationMinutes || t.SlotDuration > MaxDurationMinutes {
		return fmt.Errorf("slot duration %d outside %d..%d", t.SlotDuration, MinDurationMinutes, MaxDurationMinutes)
	}
	return nil
}

func validateWindows(windows []TimeWindow) error {
	const minutesPerDay = 24 * 60
	for i, w := range windows {
		if w.Start < 0 || w.End > minutesPerDay || w.Start >= w.End {
			return fmt.Errorf("window %d: invalid bounds %d-%d", i, w.Start, w.End)
		}
		if i > 0 && windows[i-1].End > w.Start {
			return fmt.Errorf("window %d overlaps previous (ends %d, starts %d)", i, windows[i-1].End, w.Start)
		}
	}
	return nil
}
