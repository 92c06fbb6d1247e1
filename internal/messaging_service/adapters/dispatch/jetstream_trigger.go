package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/messagebroker"
)

// JetStreamTrigger hands jobs to the delivery worker through a JetStream work queue.
// The job id is the de-duplication id, so a repeated trigger of the same job is dropped by the server.
type JetStreamTrigger struct {
	publisher messagebroker.StreamPublisher
	subject   string
	logger    *slog.Logger
}

func NewJetStreamTrigger(publisher messagebroker.StreamPublisher, subject string, logger *slog.Logger) *JetStreamTrigger {
	return &JetStreamTrigger{publisher: publisher, subject: subject, logger: logger.With("trigger", "jetstream")}
}

func (t *JetStreamTrigger) Trigger(ctx context.Context, payload coredomain.DispatchPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}
	if err := t.publisher.PublishWithID(ctx, t.subject, payload.JobID, data); err != nil {
		return err
	}
	t.logger.DebugContext(ctx, "Dispatch payload published", "subject", t.subject, "job_id", payload.JobID, "bytes", len(data))
	return nil
}
