package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnero/internal/model"
)

func TestSendReminder(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "email", 0, zerolog.Nop())
	b := model.Booking{
		ID:        "b1",
		StartTime: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		Status:    model.StatusScheduled,
	}
	require.NoError(t, c.SendReminder(context.Background(), b, 24))

	assert.Equal(t, "b1", got.BookingID)
	assert.Equal(t, "reminder", got.Event)
	assert.Equal(t, "email", got.Channel)
	assert.Equal(t, 24, got.OffsetHours)

	var payload model.Booking
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "b1", payload.ID)
}

func TestSendGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "email", 0, zerolog.Nop())
	err := c.Send(context.Background(), Request{BookingID: "b1", Event: "reminder"})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusServiceUnavailable, gerr.StatusCode)
	assert.Contains(t, gerr.Body, "queue full")
}

func TestRateLimiterThrottles(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
	}))
	defer srv.Close()

	// 10 rps: three sends need two limiter waits of ~100ms each.
	c := NewClient(srv.URL, "", "email", 10, zerolog.Nop())
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Send(context.Background(), Request{BookingID: "b1", Event: "reminder"}))
	}

	assert.Equal(t, int32(3), count.Load())
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestNotifyExtractsBookingID(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "email", 0, zerolog.Nop())
	payload, _ := json.Marshal(model.Booking{ID: "b7", Status: model.StatusCancelled})
	c.Notify("booking.cancelled", payload)

	assert.Equal(t, "b7", got.BookingID)
	assert.Equal(t, "booking.cancelled", got.Event)
}
