package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 1 << 20

// StatusError is a non-2xx answer turned into an error.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, truncate(e.Body, 256))
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool { return IsRetryableStatus(e.StatusCode) }

// ReadStatusError consumes and closes resp.Body and returns it as a StatusError.
func ReadStatusError(resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}

// IsRetryableStatus is true for 408, 429 and every 5xx.
func IsRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// IsClientStatus is true for 4xx codes other than 408 and 429: the request
// itself was refused and sending it again will not help.
func IsClientStatus(code int) bool {
	return code >= 400 && code < 500 && !IsRetryableStatus(code)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
