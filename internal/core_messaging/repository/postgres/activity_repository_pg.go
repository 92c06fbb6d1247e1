package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

type PgActivityLogRepository struct {
	logger *slog.Logger
}

func NewPgActivityLogRepository(logger *slog.Logger) *PgActivityLogRepository {
	return &PgActivityLogRepository{logger: logger.With("repository", "activity_log")}
}

func (r *PgActivityLogRepository) Append(ctx context.Context, q database.Querier, entry *domain.ActivityLog) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	err := q.QueryRow(ctx, `INSERT INTO message_activity_logs (entity_type, entity_id, action, actor_id, details)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		entry.EntityType, entry.EntityID, entry.Action, entry.ActorID, details).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}

func (r *PgActivityLogRepository) ListByEntity(ctx context.Context, q database.Querier, entityType, entityID string, limit int) ([]*domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.Query(ctx, `SELECT id, entity_type, entity_id, action, actor_id, details, created_at
		FROM message_activity_logs WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity log: %w", err)
	}
	defer rows.Close()

	var out []*domain.ActivityLog
	for rows.Next() {
		var e domain.ActivityLog
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.ActorID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
