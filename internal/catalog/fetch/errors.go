package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrOffline is recorded when a retry was abandoned because the host
// reported no connectivity.
var ErrOffline = errors.New("offline")

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	text := strings.TrimSpace(e.Status)
	if text == "" {
		text = http.StatusText(e.StatusCode)
	}
	// Status already carries the code ("404 Not Found").
	text = strings.TrimSpace(strings.TrimPrefix(text, fmt.Sprint(e.StatusCode)))
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, text)
}

// IsClientError reports a 4xx response, which is never retried.
func (e *HTTPError) IsClientError() bool {
	return e != nil && e.StatusCode >= 400 && e.StatusCode < 500
}

// NetworkError is the terminal failure of a fetch: a transport error, a
// timeout, or a non-2xx response after the retry budget was spent.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "network error"
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status behind err, or 0 when err is not an
// HTTP response failure.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}
