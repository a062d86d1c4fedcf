package panelclient

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// assumed wait when the backend throttles without a Retry-After hint
const DefaultRetryAfter = 60 * time.Second

// RateLimitedError is raised when the backend answers 429. It carries the
// wait duration but is never retried here; re-enqueueing is the caller's
// decision.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by backend, retry after %s", e.RetryAfter)
}

func retryAfterFrom(resp *http.Response) time.Duration {
	header := strings.TrimSpace(resp.Header.Get("Retry-After"))

	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	return DefaultRetryAfter
}
