package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	msgapp "github.com/campusline/comms_services/internal/messaging_service/app"
	"github.com/campusline/comms_services/internal/platform/authz"
)

// MessageDispatcher is the dispatch job manager as seen by the API.
type MessageDispatcher interface {
	Send(ctx context.Context, actor authz.Actor, req msgapp.SendRequest) (*msgapp.SendResult, error)
	Retry(ctx context.Context, actor authz.Actor, messageID string, recipientIDs []string) (*msgapp.RetryResult, error)
	GetMessage(ctx context.Context, actor authz.Actor, messageID string) (*coredomain.Message, error)
	ListMessages(ctx context.Context, actor authz.Actor, branchID string, limit, offset int) ([]*coredomain.Message, error)
	ListRecipients(ctx context.Context, actor authz.Actor, messageID string) ([]*coredomain.MessageRecipient, error)
	GetJobStatus(ctx context.Context, actor authz.Actor, jobID string) (*msgapp.JobStatus, error)
	ListActivity(ctx context.Context, actor authz.Actor, messageID string, limit int) ([]*coredomain.ActivityLog, error)
}

// DeliveryLogExporter renders the per-recipient delivery log of a message.
type DeliveryLogExporter interface {
	WriteDeliveryLog(ctx context.Context, actor authz.Actor, messageID string, w io.Writer) error
}

type MessageHandler struct {
	dispatcher MessageDispatcher
	exporter   DeliveryLogExporter
	logger     *slog.Logger
	validate   *validator.Validate
}

func NewMessageHandler(dispatcher MessageDispatcher, exporter DeliveryLogExporter, logger *slog.Logger, validate *validator.Validate) *MessageHandler {
	return &MessageHandler{
		dispatcher: dispatcher,
		exporter:   exporter,
		logger:     logger.With("handler", "message"),
		validate:   validate,
	}
}

// RegisterRoutes registers message and job routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages/send", h.handleSendMessage)
	r.Get("/messages", h.handleListMessages)
	r.Get("/messages/{messageID}", h.handleGetMessage)
	r.Get("/messages/{messageID}/recipients", h.handleListRecipients)
	r.Post("/messages/{messageID}/retry", h.handleRetry)
	r.Get("/messages/{messageID}/delivery-log.csv", h.handleDeliveryLog)
	r.Get("/messages/{messageID}/activity", h.handleListActivity)
	r.Get("/jobs/{jobID}", h.handleGetJobStatus)
}

func (req SendMessageRequest) sendRequest() msgapp.SendRequest {
	out := msgapp.SendRequest{
		Title:                req.Title,
		TemplateID:           req.TemplateID,
		CustomMessage:        req.CustomMessage,
		RecipientType:        req.RecipientType,
		Recipients:           req.Recipients,
		Target:               req.Target,
		TemplateParameters:   req.TemplateParameters,
		TemplateDataMappings: req.TemplateDataMappings,
		ScheduledAt:          req.ScheduledAt,
		BranchID:             req.BranchID,
		DryRun:               req.DryRun,
	}
	if out.Target != nil && len(out.Target.ContactTypes) == 0 && len(req.ContactType) > 0 {
		target := *out.Target
		target.ContactTypes = req.ContactType
		out.Target = &target
	}
	return out
}

func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.ErrorContext(ctx, "Failed to decode send message request", "error", err)
		jsonError(ctx, w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(ctx, w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Recipients) == 0 && req.Target == nil {
		jsonError(ctx, w, logger, "Either recipients or target is required", http.StatusBadRequest)
		return
	}

	res, err := h.dispatcher.Send(ctx, actor, req.sendRequest())
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	logger.InfoContext(ctx, "Message accepted", "message_id", res.MessageID, "job_id", res.JobID, "status", res.Status)
	writeJSON(w, http.StatusAccepted, res)
}

func (h *MessageHandler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	branchID := q.Get("branchId")
	if branchID == "" {
		jsonError(ctx, w, logger, "branchId query parameter is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	messages, err := h.dispatcher.ListMessages(ctx, actor, branchID, limit, offset)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	if messages == nil {
		messages = []*coredomain.Message{}
	}
	writeJSON(w, http.StatusOK, MessageListResponse{Messages: messages, Limit: limit, Offset: offset})
}

func (h *MessageHandler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	msg, err := h.dispatcher.GetMessage(ctx, actor, chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	rows, err := h.dispatcher.ListRecipients(ctx, actor, chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	if rows == nil {
		rows = []*coredomain.MessageRecipient{}
	}
	writeJSON(w, http.StatusOK, RecipientListResponse{Recipients: rows, Count: len(rows)})
}

func (h *MessageHandler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.dispatcher.ListActivity(ctx, actor, chi.URLParam(r, "messageID"), limit)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	if entries == nil {
		entries = []*coredomain.ActivityLog{}
	}
	writeJSON(w, http.StatusOK, ActivityListResponse{Entries: entries, Count: len(entries)})
}

func (h *MessageHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	var req RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(ctx, w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	messageID := chi.URLParam(r, "messageID")
	res, err := h.dispatcher.Retry(ctx, actor, messageID, req.RecipientIDs)
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	if res.NothingToRetry {
		writeJSON(w, http.StatusOK, res)
		return
	}
	logger.InfoContext(ctx, "Retry accepted", "message_id", messageID, "job_id", res.JobID, "retried", res.RetriedCount)
	writeJSON(w, http.StatusAccepted, res)
}

func (h *MessageHandler) handleDeliveryLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	messageID := chi.URLParam(r, "messageID")
	var buf bytes.Buffer
	if err := h.exporter.WriteDeliveryLog(ctx, actor, messageID, &buf); err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="delivery-log-%s.csv"`, messageID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.WarnContext(ctx, "Failed to stream delivery log", "error", err, "message_id", messageID)
	}
}

func (h *MessageHandler) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, logger, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}
	st, err := h.dispatcher.GetJobStatus(ctx, actor, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(ctx, w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
