package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	drdomain "github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
)

// JobUpdateApplier folds a worker progress report into recipient, job and message state.
type JobUpdateApplier interface {
	ApplyJobUpdate(ctx context.Context, jobID string, update drdomain.JobUpdate) (*drdomain.JobUpdateResult, error)
}

// WorkerHandler serves the callback the delivery worker uses to report job progress.
type WorkerHandler struct {
	applier  JobUpdateApplier
	logger   *slog.Logger
	validate *validator.Validate
}

func NewWorkerHandler(applier JobUpdateApplier, logger *slog.Logger, validate *validator.Validate) *WorkerHandler {
	return &WorkerHandler{
		applier:  applier,
		logger:   logger.With("handler", "worker"),
		validate: validate,
	}
}

// RegisterRoutes registers worker routes with the given router.
func (h *WorkerHandler) RegisterRoutes(r chi.Router) {
	r.Post("/jobs/{jobID}/updates", h.handleJobUpdate)
}

func (h *WorkerHandler) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "job_id", jobID)

	var update drdomain.JobUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		jsonError(ctx, w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, update); err != nil {
		jsonError(ctx, w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.applier.ApplyJobUpdate(ctx, jobID, update)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
