package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/revival-api/internal/generation"
	"github.com/phrazzld/revival-api/internal/service"
	"github.com/phrazzld/revival-api/internal/store"
)

// Stable machine-readable error codes returned in the response body.
// Clients branch on these, not on the human-readable message.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeQuotaExhausted     = "quota_exhausted"
	CodeTaskInFlight       = "task_in_flight"
	CodeNoTemplates        = "no_templates"
	CodeSubmissionRejected = "submission_rejected"
	CodeGenerationFailed   = "generation_failed"
	CodeGenerationTimeout  = "generation_timeout"
	CodeUserExists         = "user_exists"
	CodeNotFound           = "not_found"
	CodeInternalError      = "internal_error"
)

// MapErrorToStatusCode maps service and generation errors to HTTP status
// codes. Unknown errors default to 500 so nothing internal leaks as a
// client-visible classification.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrQuotaExhausted):
		return http.StatusPaymentRequired

	case errors.Is(err, service.ErrConcurrentTask):
		return http.StatusConflict

	case errors.Is(err, service.ErrNoTemplates):
		return http.StatusServiceUnavailable

	case generation.IsTimeoutError(err):
		return http.StatusGatewayTimeout

	case generation.IsSubmissionError(err), generation.IsJobFailedError(err):
		return http.StatusBadGateway

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// MapErrorToCode returns the machine-readable code for an error.
func MapErrorToCode(err error) string {
	switch {
	case errors.Is(err, service.ErrQuotaExhausted):
		return CodeQuotaExhausted
	case errors.Is(err, service.ErrConcurrentTask):
		return CodeTaskInFlight
	case errors.Is(err, service.ErrNoTemplates):
		return CodeNoTemplates
	case generation.IsTimeoutError(err):
		return CodeGenerationTimeout
	case generation.IsSubmissionError(err):
		return CodeSubmissionRejected
	case generation.IsJobFailedError(err):
		return CodeGenerationFailed
	case errors.Is(err, store.ErrDuplicate):
		return CodeUserExists
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrInvalidEntity):
		return CodeInvalidRequest
	default:
		return CodeInternalError
	}
}

// GetSafeErrorMessage returns a user-facing message for an error without
// exposing internal detail.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, service.ErrQuotaExhausted):
		return "Generation quota exhausted for this period"
	case errors.Is(err, service.ErrConcurrentTask):
		return "A generation is already in progress for this user"
	case errors.Is(err, service.ErrNoTemplates):
		return "No poster templates are currently available"
	case generation.IsTimeoutError(err):
		return "Generation did not finish in time"
	case generation.IsSubmissionError(err):
		return "Generation service rejected the request"
	case generation.IsJobFailedError(err):
		return "Generation failed"
	case errors.Is(err, store.ErrDuplicate):
		return "User is already registered"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"
	default:
		return "An unexpected error occurred"
	}
}
