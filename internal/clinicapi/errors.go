package clinicapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrInvalidRequest marks input rejected before any network call.
var ErrInvalidRequest = errors.New("clinicapi: invalid request")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("clinicapi: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("clinicapi: %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// Retryable reports whether trying the same request again can succeed.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// IsRetryable classifies an error returned by the client. Transport
// failures and 5xx are retryable; validation and 4xx are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errTransport)
}

var errTransport = errors.New("transport failure")

// IsNotFound reports a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
