package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phrazzld/revival-api/internal/redact"
)

// ErrorResponse is the standard error payload. Code is a stable
// machine-readable identifier clients can branch on; Error is a safe
// human-readable message. Raw internal errors never appear here.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	QuotaConsumed *bool  `json:"quota_consumed,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes a standard error payload.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: GetTraceID(r.Context()),
	})
}

// RespondWithErrorAndLog writes a standard error payload and logs the
// underlying error, redacted, at a level matching the status class. The raw
// error string is never sent to the client.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	code, userMessage string,
	err error,
	quotaConsumed *bool,
) {
	traceID := GetTraceID(r.Context())

	logAttrs := []any{
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("error_code", code),
	}
	if err != nil {
		logAttrs = append(logAttrs, slog.String("error", redact.Error(err)))
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", logAttrs...)
	} else {
		slog.Debug("request rejected", logAttrs...)
	}

	RespondWithJSON(w, r, status, ErrorResponse{
		Error:         userMessage,
		Code:          code,
		QuotaConsumed: quotaConsumed,
		TraceID:       traceID,
	})
}
