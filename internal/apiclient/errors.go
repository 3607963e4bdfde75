package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any upstream 401. It is never retried.
var ErrUnauthorized = errors.New("upstream rejected credentials")

// ErrDecode wraps responses that could not be decoded.
var ErrDecode = errors.New("decode upstream response")

// APIError is a non-2xx upstream response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Is makes errors.Is(err, ErrUnauthorized) true for 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// Details is rendered into error responses.
func (e *APIError) Details() map[string]interface{} {
	d := map[string]interface{}{"upstream_status": e.Status}
	if e.Code != "" {
		d["upstream_code"] = e.Code
	}
	return d
}

// IsRetryable classifies an error returned by the client. Transport
// failures, timeouts and 5xx responses are retryable; authorization
// failures, other 4xx responses, decode errors and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDecode) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
