package domain

import (
	"context"
	"time"

	"github.com/campusline/comms_services/internal/platform/database"
)

// Repositories take the Querier per call so callers decide the transaction boundary.

type MessageRepository interface {
	Create(ctx context.Context, q database.Querier, m *Message) error
	GetByID(ctx context.Context, q database.Querier, id string) (*Message, error)
	GetForUpdate(ctx context.Context, q database.Querier, id string) (*Message, error)
	ListByBranch(ctx context.Context, q database.Querier, branchID string, limit, offset int) ([]*Message, error)
	UpdateStatus(ctx context.Context, q database.Querier, id string, status MessageStatus) error
	UpdateCounts(ctx context.Context, q database.Querier, m *Message) error
}

type RecipientRepository interface {
	CreateBatch(ctx context.Context, q database.Querier, rows []*MessageRecipient) error
	GetForUpdate(ctx context.Context, q database.Querier, id string) (*MessageRecipient, error)
	FindByProviderMessageID(ctx context.Context, q database.Querier, providerMessageID string) (*MessageRecipient, error)
	ListByMessage(ctx context.Context, q database.Querier, messageID string) ([]*MessageRecipient, error)
	ListByJob(ctx context.Context, q database.Querier, jobID string) ([]*MessageRecipient, error)
	ListFailed(ctx context.Context, q database.Querier, messageID string, ids []string) ([]*MessageRecipient, error)
	ResetForRetry(ctx context.Context, q database.Querier, jobID string, ids []string) error
	MarkFailed(ctx context.Context, q database.Querier, ids []string, reason string, at time.Time) error
	UpdateDelivery(ctx context.Context, q database.Querier, r *MessageRecipient) error
	CountByJob(ctx context.Context, q database.Querier, jobID string) (StatusCounts, error)
	CountByMessage(ctx context.Context, q database.Querier, messageID string) (StatusCounts, error)
}

type JobRepository interface {
	Create(ctx context.Context, q database.Querier, j *MessageJob) error
	GetByID(ctx context.Context, q database.Querier, id string) (*MessageJob, error)
	GetForUpdate(ctx context.Context, q database.Querier, id string) (*MessageJob, error)
	FindActiveByMessage(ctx context.Context, q database.Querier, messageID string) (*MessageJob, error)
	LatestByMessage(ctx context.Context, q database.Querier, messageID string) (*MessageJob, error)
	AcquireDueScheduled(ctx context.Context, q database.Querier, now time.Time, limit int) ([]*MessageJob, error)
	Update(ctx context.Context, q database.Querier, j *MessageJob) error
	MarkFailed(ctx context.Context, q database.Querier, id, reason string, at time.Time) error
}

type TemplateRepository interface {
	Create(ctx context.Context, q database.Querier, t *Template) error
	GetByID(ctx context.Context, q database.Querier, id string) (*Template, error)
	FindByProviderKey(ctx context.Context, q database.Querier, providerName, providerLanguage string) (*Template, error)
	List(ctx context.Context, q database.Querier, filter TemplateFilter) ([]*Template, error)
	Update(ctx context.Context, q database.Querier, t *Template) error
	Delete(ctx context.Context, q database.Querier, id string) error
}

type CredentialsRepository interface {
	GetByBranch(ctx context.Context, q database.Querier, branchID string) (*ProviderCredentials, error)
	Upsert(ctx context.Context, q database.Querier, c *ProviderCredentials) error
}

type ActivityLogRepository interface {
	Append(ctx context.Context, q database.Querier, entry *ActivityLog) error
	ListByEntity(ctx context.Context, q database.Querier, entityType, entityID string, limit int) ([]*ActivityLog, error)
}

// DispatchTrigger hands a job to the out-of-process delivery worker.
// Implementations return once the handoff is acknowledged; they never wait for delivery.
type DispatchTrigger interface {
	Trigger(ctx context.Context, payload DispatchPayload) error
}
