package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/revival-api/internal/api/shared"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/platform/logger"
)

// UserRegistrar is the service-layer contract for user provisioning.
type UserRegistrar interface {
	Register(ctx context.Context, externalID string) (*domain.User, *domain.Subscription, error)
}

// RegisterUserRequest is the request body for POST /users.
type RegisterUserRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
}

// RegisterUserResponse is returned on successful registration.
type RegisterUserResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	PlanKind   string    `json:"plan_kind"`
	QuotaTotal int       `json:"quota_total"`
	PeriodEnd  time.Time `json:"period_end"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserHandler handles user registration requests.
type UserHandler struct {
	registrar UserRegistrar
	logger    *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(registrar UserRegistrar, log *slog.Logger) *UserHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for UserHandler")
	}
	return &UserHandler{
		registrar: registrar,
		logger:    log.With(slog.String("component", "user_handler")),
	}
}

// RegisterUser handles POST /users. Registration creates the user and its
// trial quota ledger row atomically.
func (h *UserHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RegisterUserRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request data")
		return
	}

	user, sub, err := h.registrar.Register(r.Context(), req.ExternalID)
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

	log.Info("user registered", slog.String("user_id", user.ID.String()))

	shared.RespondWithJSON(w, r, http.StatusCreated, RegisterUserResponse{
		ID:         user.ID.String(),
		ExternalID: user.ExternalID,
		PlanKind:   string(sub.PlanKind),
		QuotaTotal: sub.QuotaTotal,
		PeriodEnd:  sub.PeriodEnd,
		CreatedAt:  user.CreatedAt,
	})
}
