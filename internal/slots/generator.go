// Package slots generates bookable time slots for a practitioner's day.
package slots

import (
	"time"

	"turnero/internal/model"
)

// Slot is a single bookable window.
type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Generate walks each availability window on a fixed grid and emits the
// candidates that do not overlap an active booking. The cursor advances by
// duration+buffer after every candidate, accepted or not: the buffer is
// spacing between generated slots, not a packing search. Stateless across
// calls.
func Generate(date time.Time, durationMinutes, bufferMinutes int, windows []model.TimeWindow, busy []model.Booking) []Slot {
	if durationMinutes <= 0 {
		return nil
	}

	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(durationMinutes+bufferMinutes) * time.Minute

	var out []Slot
	for _, w := range windows {
		ws, we := w.On(date)
		for t := ws; !t.Add(duration).After(we); t = t.Add(step) {
			end := t.Add(duration)
			if !overlapsAny(t, end, busy) {
				out = append(out, Slot{StartTime: t, EndTime: end})
			}
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []model.Booking) bool {
	for i := range busy {
		if !busy[i].Active() {
			continue
		}
		if busy[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}
