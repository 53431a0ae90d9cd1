package service

import (
	"errors"
	"fmt"
)

// ErrDailyLimit is returned when a practitioner's per-day booking cap is hit.
var ErrDailyLimit = errors.New("daily booking limit reached")

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// OutsideAvailabilityError reports a requested time outside the
// practitioner's working windows.
type OutsideAvailabilityError struct {
	Reason string
}

func (e *OutsideAvailabilityError) Error() string {
	return "outside availability: " + e.Reason
}
