package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// HTTPTrigger posts the dispatch payload to the delivery worker's HTTP endpoint.
// Any 2xx answer is an acknowledged handoff.
type HTTPTrigger struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPTrigger(url string, httpClient *http.Client, logger *slog.Logger) *HTTPTrigger {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPTrigger{url: url, httpClient: httpClient, logger: logger.With("trigger", "http")}
}

func (t *HTTPTrigger) Trigger(ctx context.Context, payload coredomain.DispatchPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.JobID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach delivery worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("delivery worker rejected job %s: status %d body=%q", payload.JobID, resp.StatusCode, string(snippet))
	}
	t.logger.DebugContext(ctx, "Dispatch payload accepted", "job_id", payload.JobID, "status_code", resp.StatusCode)
	return nil
}
