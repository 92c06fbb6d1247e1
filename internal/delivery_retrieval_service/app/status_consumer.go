package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
	"github.com/campusline/comms_services/internal/platform/messagebroker"
)

const subjectPrefix = "delivery.status."

// StatusApplier applies one delivery status update.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, source string, u domain.StatusUpdate) (Outcome, error)
}

// StatusConsumer consumes raw provider callbacks published on delivery.status.<provider>.
type StatusConsumer struct {
	natsClient messagebroker.NATSClient
	applier    StatusApplier
	deduper    Deduper
	logger     *slog.Logger
}

func NewStatusConsumer(natsClient messagebroker.NATSClient, applier StatusApplier, deduper Deduper, logger *slog.Logger) *StatusConsumer {
	return &StatusConsumer{
		natsClient: natsClient,
		applier:    applier,
		deduper:    deduper,
		logger:     logger.With("component", "status_consumer"),
	}
}

// StartConsuming subscribes with a queue group and blocks until ctx is cancelled.
func (c *StatusConsumer) StartConsuming(ctx context.Context, subject, queueGroup string) error {
	c.logger.InfoContext(ctx, "Starting NATS status subscription", "subject", subject, "queue_group", queueGroup)
	err := c.natsClient.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg *nats.Msg) {
		c.handle(ctx, msg.Subject, msg.Data)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "NATS status subscription failed", "error", err, "subject", subject)
		return err
	}
	c.logger.InfoContext(ctx, "NATS status subscription ended", "subject", subject)
	return nil
}

func (c *StatusConsumer) handle(ctx context.Context, subject string, data []byte) {
	provider := strings.TrimPrefix(subject, subjectPrefix)
	if provider == subject || provider == "" || strings.Contains(provider, ".") {
		c.logger.ErrorContext(ctx, "Invalid NATS subject format for status event", "subject", subject)
		return
	}
	natsMessagesReceivedCounter.WithLabelValues(provider).Inc()

	var updates []domain.StatusUpdate
	switch provider {
	case "whatsapp":
		var hook domain.WhatsAppWebhook
		if err := json.Unmarshal(data, &hook); err != nil {
			c.logger.ErrorContext(ctx, "Failed to deserialize WhatsApp webhook", "error", err, "data_len", len(data))
			return
		}
		updates = hook.StatusUpdates()
	default:
		c.logger.ErrorContext(ctx, "No status mapping for provider", "provider", provider)
		return
	}

	for _, u := range updates {
		c.apply(ctx, provider, u)
	}
}

func (c *StatusConsumer) apply(ctx context.Context, provider string, u domain.StatusUpdate) {
	key := u.DedupeKey()
	first, err := c.deduper.FirstSeen(ctx, key)
	if err != nil {
		// the lattice makes reapplying safe, so a dedupe outage only costs a database round trip
		c.logger.WarnContext(ctx, "Dedupe check failed, applying anyway", "error", err, "key", key)
		first = true
	}
	if !first {
		statusUpdatesCounter.WithLabelValues(provider, "duplicate").Inc()
		c.logger.DebugContext(ctx, "Duplicate status callback skipped", "provider_message_id", u.ProviderMessageID, "status", u.Status)
		return
	}

	outcome, err := c.applier.ApplyStatus(ctx, provider, u)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to apply status update", "error", err, "provider_message_id", u.ProviderMessageID, "status", u.Status)
		c.forget(ctx, key)
		return
	}
	if outcome == OutcomeParked {
		// a redelivery must reach the applier again once the recipient row carries the id
		c.forget(ctx, key)
	}
	c.logger.DebugContext(ctx, "Status update processed", "provider_message_id", u.ProviderMessageID, "status", u.Status, "outcome", outcome)
}

func (c *StatusConsumer) forget(ctx context.Context, key string) {
	if err := c.deduper.Forget(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "Failed to clear dedupe key", "error", err, "key", key)
	}
}
