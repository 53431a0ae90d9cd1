package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"turnero/internal/metrics"
	"turnero/internal/model"
	"turnero/internal/service"
)

// CreateBookingRequest is the request body for POST /api/bookings.
type CreateBookingRequest struct {
	PractitionerID int64  `json:"practitioner_id"`
	PatientID      int64  `json:"patient_id"`
	StartTime      string `json:"start_time"` // RFC 3339
	Duration       int    `json:"duration,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
}

// CancelRequest is the request body for POST /api/bookings/{id}/cancel.
type CancelRequest struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// RescheduleRequest is the request body for POST /api/bookings/{id}/reschedule.
// A zero duration keeps the booking's current duration.
type RescheduleRequest struct {
	StartTime string `json:"start_time"` // RFC 3339
	Duration  int    `json:"duration,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleCreateBooking creates a booking.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req CreateBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected RFC 3339")
		return
	}

	b, err := s.scheduler.CreateBooking(r.Context(), service.CreateBookingRequest{
		PractitionerID: req.PractitionerID,
		PatientID:      req.PatientID,
		StartTime:      start,
		Duration:       req.Duration,
		Reason:         req.Reason,
		Notes:          req.Notes,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleGetBooking returns a booking by ID.
// GET /api/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")

	b, err := s.scheduler.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleConfirm confirms a scheduled booking.
// POST /api/bookings/{id}/confirm
func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm_booking")
	s.runTransition(w, r, s.scheduler.Confirm)
}

// handleStartVisit marks a confirmed booking as in progress.
// POST /api/bookings/{id}/start
func (s *HTTPServer) handleStartVisit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("start_visit")
	s.runTransition(w, r, s.scheduler.StartVisit)
}

// handleComplete completes a booking.
// POST /api/bookings/{id}/complete
func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("complete_booking")
	s.runTransition(w, r, s.scheduler.Complete)
}

// handleNoShow marks a past booking as a no-show.
// POST /api/bookings/{id}/no-show
func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("no_show")
	s.runTransition(w, r, s.scheduler.MarkNoShow)
}

func (s *HTTPServer) runTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*model.Booking, error)) {
	b, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleCancel cancels a booking, subject to the cancellation window.
// POST /api/bookings/{id}/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")

	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := s.scheduler.Cancel(r.Context(), r.PathValue("id"), req.Reason, req.CancelledBy)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleReschedule moves a booking to a new start time.
// POST /api/bookings/{id}/reschedule
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reschedule_booking")

	var req RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected RFC 3339")
		return
	}

	b, err := s.scheduler.Reschedule(r.Context(), r.PathValue("id"), start, req.Duration, req.Reason, req.CreatedBy)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handlePatientBookings returns a patient's booking history.
// GET /api/patients/{id}/bookings?limit=N
func (s *HTTPServer) handlePatientBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("patient_bookings")

	patientID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	bookings, err := s.scheduler.PatientBookings(r.Context(), patientID, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleStats returns booking counts per status, optionally for a single
// practitioner.
// GET /api/stats?from=YYYY-MM-DD&to=YYYY-MM-DD&practitioner_id=N
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats")

	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	var practitionerID int64
	if p := r.URL.Query().Get("practitioner_id"); p != "" {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid practitioner_id")
			return
		}
		practitionerID = id
	}

	counts, err := s.scheduler.Stats(r.Context(), practitionerID, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"counts": counts,
	})
}

func parseID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return id, true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return time.Time{}, time.Time{}, false
	}

	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return time.Time{}, time.Time{}, false
	}
	// The range is inclusive of the final day.
	return from, to.Add(24 * time.Hour), true
}
