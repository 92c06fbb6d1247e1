package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	msgapp "github.com/campusline/comms_services/internal/messaging_service/app"
	"github.com/campusline/comms_services/internal/platform/authz"
)

// TemplateManager is the template store as seen by the API.
type TemplateManager interface {
	CreateTemplate(ctx context.Context, actor authz.Actor, in msgapp.TemplateInput) (*coredomain.Template, error)
	GetTemplate(ctx context.Context, actor authz.Actor, id string) (*coredomain.Template, error)
	ListTemplates(ctx context.Context, actor authz.Actor, filter coredomain.TemplateFilter) ([]*coredomain.Template, error)
	UpdateTemplate(ctx context.Context, actor authz.Actor, id string, in msgapp.TemplateInput, resetApproval bool) (*coredomain.Template, error)
	DeleteTemplate(ctx context.Context, actor authz.Actor, id string) error
	ResetApproval(ctx context.Context, actor authz.Actor, id string) (*coredomain.Template, error)
	SubmitForApproval(ctx context.Context, actor authz.Actor, id, branchID string) (string, error)
	SyncTemplates(ctx context.Context, actor authz.Actor, branchID, originBranchID string) (*msgapp.SyncResult, error)
}

type TemplateHandler struct {
	templates TemplateManager
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewTemplateHandler(templates TemplateManager, logger *slog.Logger, validate *validator.Validate) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		logger:    logger.With("handler", "template"),
		validate:  validate,
	}
}

// RegisterRoutes registers template routes with the given router.
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/sync", h.handleSync)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/submit", h.handleSubmit)
			r.Post("/reset-approval", h.handleResetApproval)
		})
	})
}

func (req TemplateRequest) input() msgapp.TemplateInput {
	return msgapp.TemplateInput{
		Name:      req.Name,
		Category:  req.Category,
		Language:  req.Language,
		Body:      req.Body,
		Variables: req.Variables,
		Header:    req.Header,
		Footer:    req.Footer,
		Buttons:   req.Buttons,
		MediaURLs: req.MediaURLs,
	}
}

func (h *TemplateHandler) decodeTemplate(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (TemplateRequest, bool) {
	ctx := r.Context()
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(ctx, w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(ctx, w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *TemplateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := coredomain.TemplateFilter{
		Category: coredomain.TemplateCategory(q.Get("category")),
		Search:   q.Get("search"),
	}
	if q.Has("approvalStatus") {
		status := coredomain.ApprovalStatus(q.Get("approvalStatus"))
		filter.ApprovalStatus = &status
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	templates, err := h.templates.ListTemplates(ctx, actor, filter)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	if templates == nil {
		templates = []*coredomain.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *TemplateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	req, ok := h.decodeTemplate(w, r, logger)
	if !ok {
		return
	}

	tpl, err := h.templates.CreateTemplate(ctx, actor, req.input())
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	logger.InfoContext(ctx, "Template created", "template_id", tpl.ID, "name", tpl.Name)
	writeJSON(w, http.StatusCreated, tpl)
}

func (h *TemplateHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	tpl, err := h.templates.GetTemplate(ctx, actor, chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *TemplateHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	req, ok := h.decodeTemplate(w, r, logger)
	if !ok {
		return
	}

	tpl, err := h.templates.UpdateTemplate(ctx, actor, chi.URLParam(r, "templateID"), req.input(), req.ResetApproval)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *TemplateHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.templates.DeleteTemplate(ctx, actor, chi.URLParam(r, "templateID")); err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) handleResetApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	tpl, err := h.templates.ResetApproval(ctx, actor, chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *TemplateHandler) decodeBranch(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (BranchRequest, bool) {
	ctx := r.Context()
	var req BranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(ctx, w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(ctx, w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *TemplateHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	req, ok := h.decodeBranch(w, r, logger)
	if !ok {
		return
	}

	name, err := h.templates.SubmitForApproval(ctx, actor, chi.URLParam(r, "templateID"), req.BranchID)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitTemplateResponse{ProviderName: name})
}

func (h *TemplateHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	req, ok := h.decodeBranch(w, r, logger)
	if !ok {
		return
	}

	res, err := h.templates.SyncTemplates(ctx, actor, req.BranchID, req.OriginBranchID)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	logger.InfoContext(ctx, "Templates synced", "branch_id", req.BranchID, "created", res.Created, "updated", res.Updated)
	writeJSON(w, http.StatusOK, res)
}
