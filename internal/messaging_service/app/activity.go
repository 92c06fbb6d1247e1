package app

import (
	"context"
	"log/slog"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

// ActivityRecorder appends audit entries. Failures are logged and never returned,
// so it is called outside transactions, after the state change it describes.
type ActivityRecorder struct {
	db     database.Querier
	repo   coredomain.ActivityLogRepository
	logger *slog.Logger
}

func NewActivityRecorder(db database.Querier, repo coredomain.ActivityLogRepository, logger *slog.Logger) *ActivityRecorder {
	return &ActivityRecorder{db: db, repo: repo, logger: logger.With("component", "activity_log")}
}

func (a *ActivityRecorder) Record(ctx context.Context, entityType, entityID, action, actorID string, details map[string]any) {
	entry := &coredomain.ActivityLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Details:    details,
	}
	if err := a.repo.Append(context.WithoutCancel(ctx), a.db, entry); err != nil {
		a.logger.ErrorContext(ctx, "Failed to append activity log", "error", err, "entity_type", entityType, "entity_id", entityID, "action", action)
	}
}

// List returns the newest entries of one entity first.
func (a *ActivityRecorder) List(ctx context.Context, entityType, entityID string, limit int) ([]*coredomain.ActivityLog, error) {
	return a.repo.ListByEntity(ctx, a.db, entityType, entityID, limit)
}
