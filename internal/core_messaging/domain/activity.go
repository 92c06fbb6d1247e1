package domain

import "time"

const (
	EntityMessage  = "message"
	EntityTemplate = "template"
	EntityJob      = "job"
	EntityBranch   = "branch"
)

const (
	ActionMessageCreated    = "message_created"
	ActionMessageScheduled  = "message_scheduled"
	ActionDispatchTriggered = "dispatch_triggered"
	ActionDispatchFailed    = "dispatch_failed"
	ActionRetryRequested    = "retry_requested"
	ActionTemplateCreated   = "template_created"
	ActionTemplateUpdated   = "template_updated"
	ActionTemplateDeleted   = "template_deleted"
	ActionTemplateSubmitted = "template_submitted"
	ActionTemplateRejected  = "template_submission_failed"
	ActionApprovalReset     = "template_approval_reset"
	ActionTemplatesSynced   = "templates_synced"
	ActionJobFinished       = "job_finished"
	ActionSettingsUpdated   = "whatsapp_settings_updated"
)

// ActivityLog is an append-only audit entry keyed by the entity it concerns.
type ActivityLog struct {
	ID         int64          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actorId"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
