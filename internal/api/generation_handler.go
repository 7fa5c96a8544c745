// Package api provides the HTTP handlers for the generation orchestrator.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/revival-api/internal/api/shared"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/platform/logger"
	"github.com/phrazzld/revival-api/internal/service"
)

// GenerationRunner is the service-layer contract this handler drives.
type GenerationRunner interface {
	Generate(ctx context.Context, req service.GenerationRequest) (*domain.GenerationTask, error)
}

// QuotaReader exposes the quota status read-model.
type QuotaReader interface {
	Status(ctx context.Context, userID uuid.UUID) (*service.QuotaStatus, error)
}

// GenerationRequest is the request body for POST /generations.
type GenerationRequest struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	InputRef string `json:"input_ref" validate:"required,url"`
}

// TaskResponse is the serialized view of a generation task.
type TaskResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	Step            int       `json:"step"`
	InputRef        string    `json:"input_ref"`
	IntermediateRef string    `json:"intermediate_ref,omitempty"`
	OutputRef       string    `json:"output_ref,omitempty"`
	TemplateName    string    `json:"template_name,omitempty"`
	ErrorDetail     string    `json:"error_detail,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func newTaskResponse(task *domain.GenerationTask) TaskResponse {
	return TaskResponse{
		ID:              task.ID.String(),
		UserID:          task.UserID.String(),
		Status:          string(task.Status),
		Step:            task.Step,
		InputRef:        task.InputRef,
		IntermediateRef: task.IntermediateRef,
		OutputRef:       task.OutputRef,
		TemplateName:    task.TemplateName,
		ErrorDetail:     task.ErrorDetail,
		CreatedAt:       task.CreatedAt,
	}
}

// GenerationHandler handles generation-related HTTP requests.
type GenerationHandler struct {
	runner GenerationRunner
	quota  QuotaReader
	logger *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(runner GenerationRunner, quota QuotaReader, log *slog.Logger) *GenerationHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for GenerationHandler")
	}
	return &GenerationHandler{
		runner: runner,
		quota:  quota,
		logger: log.With(slog.String("component", "generation_handler")),
	}
}

// CreateGeneration handles POST /generations. The pipeline runs to
// completion within this request; the response carries the terminal task.
func (h *GenerationHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req GenerationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request data")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid user id")
		return
	}

	log.Info("generation requested", slog.String("user_id", req.UserID))

	task, err := h.runner.Generate(r.Context(), service.GenerationRequest{
		UserID:   userID,
		InputRef: req.InputRef,
	})
	if err != nil {
		// A failed attempt always returns its quota unit; rejections made
		// before reservation never spent one.
		quotaConsumed := false
		shared.RespondWithErrorAndLog(
			w, r,
			MapErrorToStatusCode(err),
			MapErrorToCode(err),
			GetSafeErrorMessage(err),
			err,
			&quotaConsumed,
		)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, newTaskResponse(task))
}

// GetQuota handles GET /users/{userID}/quota.
func (h *GenerationHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid user id")
		return
	}

	status, err := h.quota.Status(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(
			w, r,
			MapErrorToStatusCode(err),
			MapErrorToCode(err),
			GetSafeErrorMessage(err),
			err,
			nil,
		)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, status)
}
