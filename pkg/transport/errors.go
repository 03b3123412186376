package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
	"github.com/karthick-kk/kiro-gateway/pkg/kiro"
	"github.com/karthick-kk/kiro-gateway/pkg/token"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP
// status code.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case api.ErrorTypeModelError:
		return http.StatusBadRequest
	case api.ErrorTypeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response using the
// ErrorResponse wrapper format from pkg/api.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteError maps a translation or upstream failure to the outbound
// error envelope and status code.
func WriteError(w http.ResponseWriter, err error) {
	var unknownModel *kiro.UnknownModelError
	if errors.As(err, &unknownModel) {
		WriteErrorResponse(w, api.NewModelError(unknownModel.Error()), http.StatusBadRequest)
		return
	}

	var authErr *token.AuthError
	if errors.As(err, &authErr) {
		WriteErrorResponse(w,
			api.NewUpstreamError("provider_auth", "token refresh with the provider failed"),
			http.StatusBadGateway,
		)
		return
	}

	var upErr *kiro.UpstreamError
	if errors.As(err, &upErr) {
		WriteErrorResponse(w, upErr.APIError(), upErr.HTTPStatus())
		return
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Client went away; nothing sensible left to write.
		return
	}

	WriteErrorResponse(w, api.NewServerError(err.Error()), http.StatusInternalServerError)
}
