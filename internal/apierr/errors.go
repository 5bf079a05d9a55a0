// Package apierr provides shared error sentinels and retry infrastructure
// for remote transcription providers. Provider-specific failures are
// classified into these sentinels at the adapter boundary.
//
// Providers wrap them with fmt.Errorf("%s: %w", msg, sentinel).
// Callers check with errors.Is(err, apierr.ErrRateLimit) etc.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for API interaction failures.
var (
	// ErrRateLimit indicates the provider throttled the request (temporary).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the API quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates API authentication failed (invalid or missing key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPayloadTooLarge indicates the audio payload exceeds the provider's upload limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a provider-side failure (5xx).
	ErrServer = errors.New("server error")
)

// FromStatus maps an HTTP status code and provider message to a sentinel-wrapped error.
// Status codes outside the known set are returned as plain errors carrying the code.
func FromStatus(statusCode int, msg string) error {
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		// Quota exhaustion shares 429 with throttling but needs user action.
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return fmt.Errorf("%s: %w", msg, ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, ErrRateLimit)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, ErrAuthFailed)
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%s: %w", msg, ErrPayloadTooLarge)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", msg, ErrBadRequest)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", msg, ErrServer)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

// IsRateLimit reports whether err is a temporary rate limit.
// Quota exhaustion is not a rate limit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
