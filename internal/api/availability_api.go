package api

import (
	"net/http"
	"strconv"
	"time"

	"turnero/internal/metrics"
	"turnero/internal/model"
)

// WindowPayload is a time-of-day interval in HH:MM.
type WindowPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayPayload describes one weekday of the template.
type DayPayload struct {
	WorkingDay bool            `json:"working_day"`
	Windows    []WindowPayload `json:"windows,omitempty"`
}

// AvailabilityRequest is the request body for PUT /api/practitioners/{id}/availability.
// Week maps lowercase weekday names to day rules.
type AvailabilityRequest struct {
	Week               map[string]DayPayload `json:"week"`
	SlotDuration       int                   `json:"slot_duration,omitempty"`
	BufferMinutes      int                   `json:"buffer_minutes,omitempty"`
	MaxBookingsPerDay  int                   `json:"max_bookings_per_day,omitempty"`
	BookingHorizonDays int                   `json:"booking_horizon_days,omitempty"`
}

// ExceptionRequest is the request body for PUT /api/practitioners/{id}/exceptions/{date}.
type ExceptionRequest struct {
	Kind    string          `json:"kind"` // blocked, custom, vacation
	Reason  string          `json:"reason,omitempty"`
	Windows []WindowPayload `json:"windows,omitempty"`
}

// SlotPayload is one free slot in a slots response.
type SlotPayload struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWindow(p WindowPayload) (model.TimeWindow, error) {
	start, err := parseClock(p.Start)
	if err != nil {
		return model.TimeWindow{}, err
	}
	end, err := parseClock(p.End)
	if err != nil {
		return model.TimeWindow{}, err
	}
	return model.TimeWindow{Start: start, End: end}, nil
}

// parseClock converts HH:MM to minutes since midnight. "24:00" is a valid
// window end meaning midnight of the next day.
func parseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWindows(payloads []WindowPayload) ([]model.TimeWindow, error) {
	windows := make([]model.TimeWindow, 0, len(payloads))
	for _, p := range payloads {
		w, err := parseWindow(p)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func formatWindows(windows []model.TimeWindow) []WindowPayload {
	payloads := make([]WindowPayload, 0, len(windows))
	for _, w := range windows {
		payloads = append(payloads, WindowPayload{
			Start: minutesToClock(w.Start),
			End:   minutesToClock(w.End),
		})
	}
	return payloads
}

func minutesToClock(min int) string {
	if min == 24*60 {
		return "24:00"
	}
	return time.Date(0, 1, 1, min/60, min%60, 0, 0, time.UTC).Format("15:04")
}

// handleSetAvailability replaces a practitioner's weekly template.
// PUT /api/practitioners/{id}/availability
func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_availability")

	practitionerID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req AvailabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Week) == 0 {
		writeError(w, http.StatusBadRequest, "week is required")
		return
	}

	tmpl := &model.AvailabilityTemplate{
		PractitionerID:     practitionerID,
		WeeklyRules:        make(map[time.Weekday]model.WeeklyRule),
		SlotDuration:       req.SlotDuration,
		BufferMinutes:      req.BufferMinutes,
		MaxBookingsPerDay:  req.MaxBookingsPerDay,
		BookingHorizonDays: req.BookingHorizonDays,
	}
	for name, day := range req.Week {
		weekday, ok := weekdayNames[name]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown weekday "+name)
			return
		}
		windows, err := parseWindows(day.Windows)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid window time; expected HH:MM")
			return
		}
		tmpl.WeeklyRules[weekday] = model.WeeklyRule{WorkingDay: day.WorkingDay, Windows: windows}
	}

	if err := s.scheduler.SetAvailability(r.Context(), tmpl); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// handleGetAvailability returns a practitioner's template.
// GET /api/practitioners/{id}/availability
func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_availability")

	practitionerID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	tmpl, err := s.scheduler.GetAvailability(r.Context(), practitionerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	week := make(map[string]DayPayload)
	for name, weekday := range weekdayNames {
		rule, ok := tmpl.WeeklyRules[weekday]
		if !ok {
			continue
		}
		week[name] = DayPayload{WorkingDay: rule.WorkingDay, Windows: formatWindows(rule.Windows)}
	}

	exceptions := make(map[string]ExceptionRequest)
	for date, ex := range tmpl.Exceptions {
		exceptions[date] = ExceptionRequest{
			Kind:    string(ex.Kind),
			Reason:  ex.Reason,
			Windows: formatWindows(ex.Windows),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"practitioner_id":      tmpl.PractitionerID,
		"week":                 week,
		"exceptions":           exceptions,
		"slot_duration":        tmpl.SlotDuration,
		"buffer_minutes":       tmpl.BufferMinutes,
		"max_bookings_per_day": tmpl.MaxBookingsPerDay,
		"booking_horizon_days": tmpl.BookingHorizonDays,
	})
}

// handleSetException writes a dated exception.
// PUT /api/practitioners/{id}/exceptions/{date}
func (s *HTTPServer) handleSetException(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_exception")

	practitionerID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	var req ExceptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	kind := model.ExceptionKind(req.Kind)
	switch kind {
	case model.ExceptionBlocked, model.ExceptionCustom, model.ExceptionVacation:
	default:
		writeError(w, http.StatusBadRequest, "kind must be blocked, custom or vacation")
		return
	}

	windows, err := parseWindows(req.Windows)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window time; expected HH:MM")
		return
	}

	ex := model.Exception{Kind: kind, Reason: req.Reason, Windows: windows}
	if err := s.scheduler.SetException(r.Context(), practitionerID, date, ex); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// handleRemoveException deletes a dated exception.
// DELETE /api/practitioners/{id}/exceptions/{date}
func (s *HTTPServer) handleRemoveException(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("remove_exception")

	practitionerID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	if err := s.scheduler.RemoveException(r.Context(), practitionerID, date); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleQuerySlots returns free slots for a practitioner on a date.
// GET /api/practitioners/{id}/slots?date=YYYY-MM-DD&duration=N
func (s *HTTPServer) handleQuerySlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("query_slots")

	practitionerID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	duration := 0
	if d := r.URL.Query().Get("duration"); d != "" {
		duration, err = strconv.Atoi(d)
		if err != nil || duration < 0 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
	}

	generated, err := s.scheduler.QuerySlots(r.Context(), practitionerID, date, duration)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	payload := make([]SlotPayload, 0, len(generated))
	for _, slot := range generated {
		payload = append(payload, SlotPayload{StartTime: slot.StartTime, EndTime: slot.EndTime})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"slots": payload,
	})
}
