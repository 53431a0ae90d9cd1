// Package api exposes the scheduling service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"turnero/internal/booking"
	"turnero/internal/database"
	"turnero/internal/service"
)

// HTTPServer serves the scheduling API.
type HTTPServer struct {
	scheduler *service.Scheduler
	apiKey    string
	logger    zerolog.Logger
	server    *http.Server
	sweep     func(ctx context.Context) int
}

// NewHTTPServer wires the routes. An empty apiKey disables authentication.
func NewHTTPServer(scheduler *service.Scheduler, port int, apiKey string, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		scheduler: scheduler,
		apiKey:    apiKey,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/practitioners/{id}/availability", s.auth(s.handleGetAvailability))
	mux.HandleFunc("PUT /api/practitioners/{id}/availability", s.auth(s.handleSetAvailability))
	mux.HandleFunc("PUT /api/practitioners/{id}/exceptions/{date}", s.auth(s.handleSetException))
	mux.HandleFunc("DELETE /api/practitioners/{id}/exceptions/{date}", s.auth(s.handleRemoveException))
	mux.HandleFunc("GET /api/practitioners/{id}/slots", s.auth(s.handleQuerySlots))

	mux.HandleFunc("POST /api/bookings", s.auth(s.handleCreateBooking))
	mux.HandleFunc("GET /api/bookings/{id}", s.auth(s.handleGetBooking))
	mux.HandleFunc("POST /api/bookings/{id}/confirm", s.auth(s.handleConfirm))
	mux.HandleFunc("POST /api/bookings/{id}/start", s.auth(s.handleStartVisit))
	mux.HandleFunc("POST /api/bookings/{id}/complete", s.auth(s.handleComplete))
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.auth(s.handleCancel))
	mux.HandleFunc("POST /api/bookings/{id}/reschedule", s.auth(s.handleReschedule))
	mux.HandleFunc("POST /api/bookings/{id}/no-show", s.auth(s.handleNoShow))

	mux.HandleFunc("GET /api/patients/{id}/bookings", s.auth(s.handlePatientBookings))
	mux.HandleFunc("GET /api/stats", s.auth(s.handleStats))
	mux.HandleFunc("POST /api/sweep", s.auth(s.handleSweep))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetSweepTrigger enables POST /api/sweep to run a reminder sweep on demand.
func (s *HTTPServer) SetSweepTrigger(fn func(ctx context.Context) int) {
	s.sweep = fn
}

func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweep == nil {
		writeError(w, http.StatusNotImplemented, "reminders are disabled")
		return
	}
	sent := s.sweep(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"reminders_sent": sent})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	var oerr *service.OutsideAvailabilityError
	var terr *booking.InvalidTransitionError
	var werr *booking.OutsideWindowError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &oerr):
		writeError(w, http.StatusUnprocessableEntity, oerr.Error())
	case errors.As(err, &terr):
		writeError(w, http.StatusConflict, terr.Error())
	case errors.As(err, &werr):
		writeError(w, http.StatusUnprocessableEntity, werr.Error())
	case errors.Is(err, service.ErrDailyLimit):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, "time slot is already booked")
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified concurrently; retry")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Msg("Internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
