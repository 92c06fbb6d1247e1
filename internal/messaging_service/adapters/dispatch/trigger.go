package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/messagebroker"
)

const (
	ModeNATS = "nats"
	ModeHTTP = "http"
)

// TriggerConfig selects how jobs reach the delivery worker.
type TriggerConfig struct {
	Mode      string
	Subject   string
	Stream    string
	WorkerURL string
	Timeout   time.Duration
}

// StreamBroker is the JetStream surface the nats mode needs.
type StreamBroker interface {
	messagebroker.StreamPublisher
	EnsureStream(ctx context.Context, name string, subjects []string) error
}

// NewTrigger builds the trigger for cfg.Mode. In nats mode the work queue stream is created when missing.
func NewTrigger(ctx context.Context, cfg TriggerConfig, broker StreamBroker, logger *slog.Logger) (coredomain.DispatchTrigger, error) {
	switch strings.ToLower(cfg.Mode) {
	case ModeNATS, "":
		if broker == nil {
			return nil, fmt.Errorf("nats trigger requires a JetStream broker")
		}
		if err := broker.EnsureStream(ctx, cfg.Stream, []string{cfg.Subject}); err != nil {
			return nil, err
		}
		return NewJetStreamTrigger(broker, cfg.Subject, logger), nil
	case ModeHTTP:
		if cfg.WorkerURL == "" {
			return nil, fmt.Errorf("http trigger requires a worker url")
		}
		return NewHTTPTrigger(cfg.WorkerURL, &http.Client{Timeout: cfg.Timeout}, logger), nil
	default:
		return nil, fmt.Errorf("unknown dispatch trigger mode %q", cfg.Mode)
	}
}
