// Package booking owns the booking lifecycle: the allowed status graph and
// the time-based guards around cancellation, rescheduling and no-shows.
package booking

import (
	"fmt"
	"time"

	"turnero/internal/model"
)

// Event is a lifecycle transition request.
type Event string

const (
	EventConfirm    Event = "confirm"
	EventStart      Event = "start"
	EventComplete   Event = "complete"
	EventCancel     Event = "cancel"
	EventReschedule Event = "reschedule"
	EventNoShow     Event = "no_show"
)

// Windows holds the time guards applied to cancel and reschedule.
type Windows struct {
	Cancellation time.Duration
	Reschedule   time.Duration
}

// DefaultWindows returns the standard guard windows: cancel at least 2 hours
// ahead, reschedule at least 4 hours ahead.
func DefaultWindows() Windows {
	return Windows{
		Cancellation: 2 * time.Hour,
		Reschedule:   4 * time.Hour,
	}
}

// InvalidTransitionError reports an event not allowed from the current status.
type InvalidTransitionError struct {
	From  model.Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a booking in status %q", e.Event, e.From)
}

// OutsideWindowError reports a time guard violation, naming the window.
type OutsideWindowError struct {
	Window        string
	RequiredHours int
}

func (e *OutsideWindowError) Error() string {
	if e.RequiredHours == 0 {
		return fmt.Sprintf("%s window not open yet", e.Window)
	}
	return fmt.Sprintf("%s requires at least %d hours before the booking starts", e.Window, e.RequiredHours)
}

// transitions maps each event to the statuses it may fire from and the
// status it produces. A reschedule moves the original booking to the
// terminal rescheduled marker; creating the replacement booking is the
// scheduling service's job.
var transitions = map[Event]map[model.Status]model.Status{
	EventConfirm: {
		model.StatusScheduled: model.StatusConfirmed,
	},
	EventStart: {
		model.StatusConfirmed: model.StatusInProgress,
	},
	EventComplete: {
		model.StatusConfirmed:  model.StatusCompleted,
		model.StatusInProgress: model.StatusCompleted,
	},
	EventCancel: {
		model.StatusScheduled: model.StatusCancelled,
		model.StatusConfirmed: model.StatusCancelled,
	},
	EventReschedule: {
		model.StatusScheduled: model.StatusRescheduled,
		model.StatusConfirmed: model.StatusRescheduled,
	},
	EventNoShow: {
		model.StatusScheduled: model.StatusNoShow,
		model.StatusConfirmed: model.StatusNoShow,
	},
}

// Lifecycle evaluates transitions against the status graph and time guards.
type Lifecycle struct {
	windows Windows
}

// NewLifecycle creates a lifecycle with the given guard windows. Zero
// durations fall back to the defaults.
func NewLifecycle(windows Windows) Lifecycle {
	def := DefaultWindows()
	if windows.Cancellation <= 0 {
		windows.Cancellation = def.Cancellation
	}
	if windows.Reschedule <= 0 {
		windows.Reschedule = def.Reschedule
	}
	return Lifecycle{windows: windows}
}

// CanTransition reports whether the event is allowed from the status,
// ignoring time guards.
func (l Lifecycle) CanTransition(from model.Status, ev Event) bool {
	_, ok := transitions[ev][from]
	return ok
}

// Next returns the status the event produces, enforcing both the status
// graph and the time guards at the given instant.
func (l Lifecycle) Next(from model.Status, ev Event, now, startTime time.Time) (model.Status, error) {
	to, ok := transitions[ev][from]
	if !ok {
		return "", &InvalidTransitionError{From: from, Event: ev}
	}

	switch ev {
	case EventCancel:
		if now.Add(l.windows.Cancellation).After(startTime) {
			return "", &OutsideWindowError{
				Window:        "cancellation",
				RequiredHours: int(l.windows.Cancellation.Hours()),
			}
		}
	case EventReschedule:
		if now.Add(l.windows.Reschedule).After(startTime) {
			return "", &OutsideWindowError{
				Window:        "reschedule",
				RequiredHours: int(l.windows.Reschedule.Hours()),
			}
		}
	case EventNoShow:
		if !now.After(startTime) {
			return "", &OutsideWindowError{Window: "no-show"}
		}
	}
	return to, nil
}
