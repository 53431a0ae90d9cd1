// Package dispatch delivers notifications to the external notification
// gateway over HTTP. The gateway fans out to the actual channels (email,
// SMS); this client only guarantees delivery to the gateway.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"turnero/internal/model"
)

// Request is one notification handed to the gateway.
type Request struct {
	BookingID   string          `json:"booking_id"`
	Event       string          `json:"event"`
	Channel     string          `json:"channel,omitempty"`
	OffsetHours int             `json:"offset_hours,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Error reports a non-2xx gateway response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("notification gateway returned %d: %s", e.StatusCode, e.Body)
}

// Client posts notifications to the gateway, rate limited.
type Client struct {
	baseURL    string
	apiKey     string
	channel    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient builds a gateway client. ratePerSecond bounds outgoing requests;
// zero or negative disables limiting.
func NewClient(baseURL, apiKey, channel string, ratePerSecond float64, logger zerolog.Logger) *Client {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	if channel == "" {
		channel = "email"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		channel:    channel,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}
}

// Send posts one notification, waiting for the rate limiter first.
func (c *Client) Send(ctx context.Context, req Request) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications", bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		return &Error{StatusCode: resp.StatusCode, Body: body.String()}
	}
	return nil
}

// SendReminder delivers an upcoming-booking reminder.
func (c *Client) SendReminder(ctx context.Context, b model.Booking, offsetHours int) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal booking: %w", err)
	}
	return c.Send(ctx, Request{
		BookingID:   b.ID,
		Event:       "reminder",
		Channel:     c.channel,
		OffsetHours: offsetHours,
		Payload:     payload,
	})
}

// Notify forwards a lifecycle event to the gateway. Errors are logged, not
// returned; lifecycle notifications are best effort.
func (c *Client) Notify(event string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var bookingID string
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		bookingID = envelope.ID
	}

	err := c.Send(ctx, Request{
		BookingID: bookingID,
		Event:     event,
		Channel:   c.channel,
		Payload:   payload,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("Failed to forward event notification")
	}
}
