package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEmptyResponse is returned when the exchange answers with no rows where one was required.
var ErrEmptyResponse = errors.New("exchange returned no data")

// Error describes a failed gateway call.
type Error struct {
	Op         string
	Status     int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// RetryDelay is the wait the exchange asked for, zero when it gave none.
func (e *Error) RetryDelay() time.Duration { return e.RetryAfter }

// Temporary reports whether retrying the same call may succeed: transport
// failures, rate limiting and server-side errors.
func (e *Error) Temporary() bool {
	if e.Status == 0 {
		return e.Err == nil || !errors.Is(e.Err, context.Canceled)
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// IsTransient reports whether err came from a retryable gateway failure.
func IsTransient(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Temporary()
	}
	return false
}
