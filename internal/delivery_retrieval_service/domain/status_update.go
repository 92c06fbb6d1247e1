package domain

import (
	"fmt"
	"strings"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// StatusUpdate is one delivery observation for a message recipient. The recipient is addressed
// by MessageRecipientID when the worker reports it, or by ProviderMessageID for provider callbacks.
type StatusUpdate struct {
	MessageRecipientID string                     `json:"messageRecipientId,omitempty"`
	ProviderMessageID  string                     `json:"providerMessageId,omitempty"`
	Status             coredomain.RecipientStatus `json:"status" validate:"required,oneof=sent delivered read failed"`
	At                 time.Time                  `json:"timestamp"`
	Error              string                     `json:"error,omitempty"`
}

// Validate checks that the update addresses a recipient and carries a reportable status.
func (u StatusUpdate) Validate() error {
	if u.MessageRecipientID == "" && u.ProviderMessageID == "" {
		return fmt.Errorf("%w: messageRecipientId or providerMessageId is required", coredomain.ErrInvalidStatus)
	}
	if !u.Status.Valid() || u.Status == coredomain.RecipientPending {
		return fmt.Errorf("%w: %q", coredomain.ErrInvalidStatus, u.Status)
	}
	return nil
}

// DedupeKey identifies an update for duplicate suppression.
func (u StatusUpdate) DedupeKey() string {
	id := u.ProviderMessageID
	if id == "" {
		id = "mr:" + u.MessageRecipientID
	}
	return "delivery:status:" + id + ":" + string(u.Status)
}

// Delivery converts the update into the recipient-level form.
func (u StatusUpdate) Delivery() coredomain.DeliveryUpdate {
	return coredomain.DeliveryUpdate{Status: u.Status, At: u.At, ProviderMessageID: u.ProviderMessageID, Error: u.Error}
}

// JobUpdate is the progress report the delivery worker posts for a job.
type JobUpdate struct {
	Status  coredomain.JobStatus `json:"status" validate:"omitempty,oneof=in_progress completed failed"`
	Error   string               `json:"error,omitempty"`
	Results []StatusUpdate       `json:"results"`
}

// JobUpdateResult summarizes how a job update was applied.
type JobUpdateResult struct {
	Applied   int                  `json:"applied"`
	Unchanged int                  `json:"unchanged"`
	Rejected  int                  `json:"rejected"`
	JobStatus coredomain.JobStatus `json:"jobStatus"`
}

// NormalizeProviderStatus maps a provider status word onto the recipient lattice.
// Statuses with no delivery meaning report ok=false.
func NormalizeProviderStatus(s string) (coredomain.RecipientStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent", "accepted":
		return coredomain.RecipientSent, true
	case "delivered":
		return coredomain.RecipientDelivered, true
	case "read", "played":
		return coredomain.RecipientRead, true
	case "failed", "undeliverable", "rejected":
		return coredomain.RecipientFailed, true
	default:
		return "", false
	}
}
