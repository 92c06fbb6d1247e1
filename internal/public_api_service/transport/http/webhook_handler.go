package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/campusline/comms_services/internal/platform/messagebroker"
)

const (
	whatsappStatusSubject = "delivery.status.whatsapp"
	maxWebhookBodyBytes   = 1 << 20
	signatureHeader       = "X-Hub-Signature-256"
)

// WebhookHandler receives provider callbacks and queues them for the delivery retrieval service.
type WebhookHandler struct {
	natsClient  messagebroker.NATSClient
	verifyToken string
	appSecret   string
	logger      *slog.Logger
}

func NewWebhookHandler(nc messagebroker.NATSClient, verifyToken, appSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		natsClient:  nc,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      logger.With("handler", "webhook"),
	}
}

// RegisterRoutes registers webhook routes with the given router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhooks/whatsapp", h.HandleWhatsAppVerify)
	r.Post("/webhooks/whatsapp", h.HandleWhatsAppCallback)
}

// HandleWhatsAppVerify answers the subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) HandleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	q := r.URL.Query()

	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" ||
		!hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.verifyToken)) {
		logger.WarnContext(ctx, "Webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}
	logger.InfoContext(ctx, "Webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// HandleWhatsAppCallback checks the payload signature and publishes the raw body to NATS.
func (h *WebhookHandler) HandleWhatsAppCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "provider_name", "whatsapp")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if h.appSecret == "" {
		logger.WarnContext(ctx, "App secret not configured, webhook signature not checked")
	} else if !validSignature(h.appSecret, r.Header.Get(signatureHeader), body) {
		logger.WarnContext(ctx, "Webhook signature mismatch")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	if !json.Valid(body) {
		logger.WarnContext(ctx, "Webhook body is not JSON", "data_len", len(body))
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if err := h.natsClient.Publish(ctx, whatsappStatusSubject, body); err != nil {
		logger.ErrorContext(ctx, "Failed to publish webhook to NATS", "error", err, "subject", whatsappStatusSubject)
		http.Error(w, "Failed to queue callback for processing", http.StatusInternalServerError)
		return
	}
	logger.DebugContext(ctx, "Webhook published to NATS", "subject", whatsappStatusSubject, "data_len", len(body))
	w.WriteHeader(http.StatusOK)
}

// validSignature checks a "sha256=<hex>" HMAC of body keyed with secret.
func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
