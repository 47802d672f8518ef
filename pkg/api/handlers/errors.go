package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/mnemod/mnemod/pkg/api/middleware"
	"github.com/mnemod/mnemod/pkg/api/response"
	"github.com/mnemod/mnemod/pkg/llm"
	"github.com/mnemod/mnemod/pkg/memory"
)

// getRequestID extracts the request ID from the request context.
func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}

// statusFromError maps domain errors to HTTP status codes:
// missing records are 404, caller mistakes are 400, upstream provider
// failures are 502 (429 when rate limited), storage failures are 503,
// anything else is 500.
func statusFromError(err error) int {
	var provErr *llm.ProviderError
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrInvalidUserID),
		errors.Is(err, memory.ErrInvalidQuery),
		errors.Is(err, memory.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.As(err, &provErr):
		if provErr.RateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case memory.IsPersistenceError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return response.ErrCodeValidationFailed
	case http.StatusNotFound:
		return response.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return response.ErrCodeRateLimited
	case http.StatusBadGateway:
		return response.ErrCodeUpstreamFailed
	case http.StatusServiceUnavailable:
		return response.ErrCodeServiceUnavailable
	default:
		return response.ErrCodeInternalServer
	}
}

// writeDomainError maps err and writes the standard error envelope.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	response.Error(w, status, errorCode(status), message, getRequestID(r.Context()))
}
