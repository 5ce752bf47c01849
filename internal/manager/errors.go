package manager

import (
	"errors"
	"net/http"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// StatusCode lets the HTTP layer map backpressure to 429.
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}
