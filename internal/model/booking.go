package model

import "time"

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Booking duration bounds, in minutes.
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 480
)

// ActiveStatuses are the states that occupy a time slot.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Booking is a single appointment. Bookings are never physically deleted;
// terminal states are retained for audit and statistics.
type Booking struct {
	ID                 string     `json:"id"`
	PractitionerID     int64      `json:"practitioner_id"`
	PatientID          int64      `json:"patient_id"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	Duration           int        `json:"duration"` // minutes
	Status             Status     `json:"status"`
	Reason             string     `json:"reason"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	RescheduledFrom    string     `json:"rescheduled_from,omitempty"`
	RescheduledTo      string     `json:"rescheduled_to,omitempty"`
	ReschedulingReason string     `json:"rescheduling_reason,omitempty"`
	CreatedBy          string     `json:"created_by,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Active reports whether the booking occupies its time slot.
func (b *Booking) Active() bool {
	switch b.Status {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

// Overlaps applies the half-open interval test [start, end) against the
// booking's own interval.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && start.Before(b.EndTime)
}

// Upcoming reports whether the booking is in the future and still remindable.
func (b *Booking) Upcoming(now time.Time) bool {
	if !b.StartTime.After(now) {
		return false
	}
	return b.Status == StatusScheduled || b.Status == StatusConfirmed
}

// StatusUpdate carries the fields written alongside a status transition.
type StatusUpdate struct {
	Status             Status
	CancellationReason string
	CancelledBy        string
	CancelledAt        *time.Time
	RescheduledTo      string
}
