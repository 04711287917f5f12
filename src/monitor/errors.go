package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Backend failure codes of the perfChartData endpoint.
const (
	CodeBadRequest        = "bad_request"
	CodeInvalidThreadName = "invalid_thread_name"
	CodeDataUnavailable   = "data_unavailable"
	CodeNotEnoughData     = "not_enough_data"
)

// BackendAPIError is a failure the backend reported explicitly through fail_reason.
// It is never retried.
type BackendAPIError struct {
	Code       string
	StatusCode int
}

func (e *BackendAPIError) Error() string { return e.Code }

// Known reports whether Code belongs to the documented failure set.
func (e *BackendAPIError) Known() bool {
	switch e.Code {
	case CodeBadRequest, CodeInvalidThreadName, CodeDataUnavailable, CodeNotEnoughData:
		return true
	}
	return false
}

// AsBackendAPIError unwraps err into a *BackendAPIError when possible.
func AsBackendAPIError(err error) (*BackendAPIError, bool) {
	var be *BackendAPIError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// HTTPError is a non-2xx answer without a fail_reason.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 120 {
		body = body[:120] + "…"
	}
	if body == "" {
		return fmt.Sprintf("backend responded with HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with HTTP %d: %s", e.StatusCode, body)
}

// retryable separates errors worth another attempt from permanent ones.
// Backend-declared failures and 4xx answers are permanent.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := AsBackendAPIError(err); ok {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500 || he.StatusCode == 429
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return isTransientNetErr(err)
}

// isTransientNetErr returns true for common transient network errors where a retry may succeed.
func isTransientNetErr(err error) bool {
	if err == nil {
		return false
	}
	es := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, io.EOF):
		return true
	case strings.Contains(es, "use of closed network connection"):
		return true
	case strings.Contains(es, "connection reset by peer"):
		return true
	case strings.Contains(es, "connection refused"):
		return true
	case strings.Contains(es, "broken pipe"):
		return true
	case strings.Contains(es, "http2") && strings.Contains(es, "stream closed"):
		return true
	case strings.Contains(es, "temporary") || strings.Contains(es, "timeout"):
		// don't treat context deadline exceeded as transient
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(es, "context deadline exceeded") {
			return false
		}
		return true
	default:
		return false
	}
}
