package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	pbdomain "github.com/campusline/comms_services/internal/phonebook_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/public_api_service/middleware"
)

// RecipientResolver expands a target description into concrete recipients.
type RecipientResolver interface {
	Resolve(ctx context.Context, actor authz.Actor, spec pbdomain.TargetSpec) ([]coredomain.Recipient, error)
}

type RecipientHandler struct {
	resolver RecipientResolver
	logger   *slog.Logger
	validate *validator.Validate
}

func NewRecipientHandler(resolver RecipientResolver, logger *slog.Logger, validate *validator.Validate) *RecipientHandler {
	return &RecipientHandler{
		resolver: resolver,
		logger:   logger.With("handler", "recipient"),
		validate: validate,
	}
}

// RegisterRoutes registers recipient routes with the given router.
func (h *RecipientHandler) RegisterRoutes(r chi.Router) {
	r.Post("/recipients/resolve", h.handleResolve)
}

// requestActor returns the authenticated actor and a logger scoped to the request.
func requestActor(w http.ResponseWriter, r *http.Request, base *slog.Logger) (authz.Actor, *slog.Logger, bool) {
	ctx := r.Context()
	logger := base.With("request_id", chi_middleware.GetReqID(ctx))
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		jsonError(ctx, w, logger, "User not authenticated", http.StatusUnauthorized)
		return authz.Actor{}, logger, false
	}
	return actor, logger.With("auth_user_id", actor.UserID), true
}

func (h *RecipientHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	var spec pbdomain.TargetSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		jsonError(ctx, w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, spec); err != nil {
		jsonError(ctx, w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	recipients, err := h.resolver.Resolve(ctx, actor, spec)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	if recipients == nil {
		recipients = []coredomain.Recipient{}
	}
	logger.InfoContext(ctx, "Recipients resolved", "target_type", spec.Type, "branch_id", spec.BranchID, "count", len(recipients))
	writeJSON(w, http.StatusOK, ResolveRecipientsResponse{Recipients: recipients, Count: len(recipients)})
}
