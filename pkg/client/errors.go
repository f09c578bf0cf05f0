package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrAuthRequired marks a failure that can only be resolved by signing in again.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNoRefreshToken is returned when a refresh is needed but none is persisted.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 64 << 10

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	// Detail is the server-provided message, if any.
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// StatusCode returns the HTTP status of err if it is (or wraps) an HTTPError, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func newHTTPError(resp *http.Response) *HTTPError {
	e := &HTTPError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return e
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return e
	}
	for _, key := range []string{"detail", "error"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
			e.Detail = msg
			return e
		}
	}
	return e
}
