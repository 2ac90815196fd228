package metabase

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable marks transport-level failures (connection refused, timeouts).
// Callers may retry at their own pace; the client itself never retries these.
var ErrUnavailable = errors.New("metabase unavailable")

// APIError is returned when Metabase rejects a request with a non-2xx status.
// The client does not retry these; the caller decides whether the operation
// is retryable.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metabase api error: status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
