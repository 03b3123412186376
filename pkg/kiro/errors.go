package kiro

import (
	"fmt"
	"net/http"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	// KindAuth is an upstream 401/403 that survived a forced refresh.
	KindAuth ErrorKind = "auth"

	// KindThrottle is an upstream 429.
	KindThrottle ErrorKind = "throttle"

	// KindServer is an upstream 5xx.
	KindServer ErrorKind = "server"

	// KindTimeout is a transport-level failure or timeout.
	KindTimeout ErrorKind = "timeout"

	// KindRequest is a non-retryable upstream 4xx.
	KindRequest ErrorKind = "request"
)

// UpstreamError is a provider failure surfaced after the retry policy
// was exhausted. Status is the last observed HTTP status, zero for
// transport-level failures.
type UpstreamError struct {
	Status  int
	Kind    ErrorKind
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, e.Message)
}

// APIError maps the upstream failure to the outbound error envelope.
func (e *UpstreamError) APIError() *api.APIError {
	switch e.Kind {
	case KindThrottle:
		return api.NewTooManyRequestsError("provider rate limit exceeded")
	case KindAuth:
		return api.NewUpstreamError("provider_auth", "provider rejected the gateway credential")
	case KindRequest:
		return api.NewInvalidRequestError("", e.Message)
	default:
		return api.NewUpstreamError(string(e.Kind), e.Message)
	}
}

// HTTPStatus returns the outbound status code for this failure.
func (e *UpstreamError) HTTPStatus() int {
	switch e.Kind {
	case KindThrottle:
		return http.StatusTooManyRequests
	case KindAuth:
		return http.StatusBadGateway
	case KindRequest:
		if e.Status >= 400 && e.Status < 500 {
			return e.Status
		}
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindThrottle
	case status >= 500:
		return KindServer
	default:
		return KindRequest
	}
}
