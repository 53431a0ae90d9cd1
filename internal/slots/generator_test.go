package slots

import (
	"testing"
	"time"

	"turnero/internal/model"
)

func day(t *testing.T) time.Time {
	t.Helper()
	// A Monday.
	return time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
}

func booking(date time.Time, startMin, endMin int, status model.Status) model.Booking {
	return model.Booking{
		StartTime: date.Add(time.Duration(startMin) * time.Minute),
		EndTime:   date.Add(time.Duration(endMin) * time.Minute),
		Status:    status,
	}
}

func starts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.Format("15:04")
	}
	return out
}

func TestGenerate(t *testing.T) {
	date := day(t)

	tests := []struct {
		name     string
		duration int
		buffer   int
		windows  []model.TimeWindow
		busy     []model.Booking
		want     []string
	}{
		{
			name:     "empty windows",
			duration: 30,
			windows:  nil,
			want:     nil,
		},
		{
			name:     "full window no bookings",
			duration: 30,
			windows:  []model.TimeWindow{{Start: 9 * 60, End: 11 * 60}},
			want:     []string{"09:00", "09:30", "10:00", "10:30"},
		},
		{
			name:     "buffer spaces the grid",
			duration: 30,
			buffer:   15,
			windows:  []model.TimeWindow{{Start: 9 * 60, End: 11 * 60}},
			want:     []string{"09:00", "09:45", "10:30"},
		},
		{
			name:     "duration larger than window",
			duration: 120,
			windows:  []model.TimeWindow{{Start: 9 * 60, End: 10 * 60}},
			want:     nil,
		},
		{
			name:     "booked slot is skipped but the grid does not shift",
			duration: 30,
			buffer:   5,
			windows:  []model.TimeWindow{{Start: 9 * 60, End: 12 * 60}},
			busy: []model.Booking{
				booking(date, 10*60, 10*60+30, model.StatusScheduled),
			},
			// Grid: 09:00 09:35 10:10 10:45 11:20; 09:35-10:05 and
			// 10:10-10:40 both overlap the 10:00-10:30 booking.
			want: []string{"09:00", "10:45", "11:20"},
		},
		{
			name:     "terminal bookings do not block",
			duration: 30,
			windows:  []model.TimeWindow{{Start: 9 * 60, End: 10 * 60}},
			busy: []model.Booking{
				booking(date, 9*60, 9*60+30, model.StatusCancelled),
				booking(date, 9*60+30, 10*60, model.StatusNoShow),
			},
			want: []string{"09:00", "09:30"},
		},
		{
			name:     "multiple windows stay ordered",
			duration: 60,
			windows: []model.TimeWindow{
				{Start: 9 * 60, End: 11 * 60},
				{Start: 14 * 60, End: 16 * 60},
			},
			busy: []model.Booking{
				booking(date, 14*60, 15*60, model.StatusConfirmed),
			},
			want: []string{"09:00", "10:00", "15:00"},
		},
		{
			name:     "slot touching a booking boundary is allowed",
			duration: 30,
			windows:  []model.TimeWindow{{Start: 10 * 60, End: 11 * 60}},
			busy: []model.Booking{
				booking(date, 10*60+30, 11*60, model.StatusScheduled),
			},
			want: []string{"10:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := starts(Generate(date, tt.duration, tt.buffer, tt.windows, tt.busy))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d slots %v, got %d %v", len(tt.want), tt.want, len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("slot %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestGenerateSlotsAreConflictFree(t *testing.T) {
	date := day(t)
	busy := []model.Booking{
		booking(date, 9*60+15, 9*60+45, model.StatusScheduled),
		booking(date, 11*60, 12*60, model.StatusInProgress),
	}
	windows := []model.TimeWindow{{Start: 8 * 60, End: 13 * 60}}

	for _, s := range Generate(date, 45, 10, windows, busy) {
		for _, b := range busy {
			if b.Overlaps(s.StartTime, s.EndTime) {
				t.Errorf("slot %s overlaps booking %s",
					s.StartTime.Format("15:04"), b.StartTime.Format("15:04"))
			}
		}
	}
}

func TestGenerateIsRestartable(t *testing.T) {
	date := day(t)
	windows := []model.TimeWindow{{Start: 9 * 60, End: 12 * 60}}
	busy := []model.Booking{booking(date, 10*60, 10*60+30, model.StatusScheduled)}

	first := Generate(date, 30, 5, windows, busy)
	second := Generate(date, 30, 5, windows, busy)
	if len(first) != len(second) {
		t.Fatalf("repeated call changed output: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].StartTime.Equal(second[i].StartTime) {
			t.Errorf("slot %d differs between calls", i)
		}
	}
}
