package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

type PgPendingStatusRepository struct {
	logger *slog.Logger
}

func NewPgPendingStatusRepository(logger *slog.Logger) *PgPendingStatusRepository {
	return &PgPendingStatusRepository{logger: logger.With("repository", "pending_status_updates")}
}

func (r *PgPendingStatusRepository) Lock(ctx context.Context, q database.Querier, providerMessageID string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, providerMessageID); err != nil {
		return fmt.Errorf("lock provider message %s: %w", providerMessageID, err)
	}
	return nil
}

func (r *PgPendingStatusRepository) Park(ctx context.Context, q database.Querier, u domain.StatusUpdate) error {
	_, err := q.Exec(ctx, `INSERT INTO pending_status_updates (provider_message_id, status, occurred_at, error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_message_id, status) DO NOTHING`,
		u.ProviderMessageID, u.Status, u.At, u.Error)
	if err != nil {
		return fmt.Errorf("park status %s for %s: %w", u.Status, u.ProviderMessageID, err)
	}
	return nil
}

func (r *PgPendingStatusRepository) Take(ctx context.Context, q database.Querier, providerMessageID string) ([]domain.StatusUpdate, error) {
	rows, err := q.Query(ctx, `DELETE FROM pending_status_updates WHERE provider_message_id = $1
		RETURNING provider_message_id, status, occurred_at, error`, providerMessageID)
	if err != nil {
		return nil, fmt.Errorf("take parked statuses for %s: %w", providerMessageID, err)
	}
	defer rows.Close()
	var updates []domain.StatusUpdate
	for rows.Next() {
		var u domain.StatusUpdate
		if err := rows.Scan(&u.ProviderMessageID, &u.Status, &u.At, &u.Error); err != nil {
			return nil, fmt.Errorf("scan parked status: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// DELETE ... RETURNING has no ORDER BY
	slices.SortStableFunc(updates, func(a, b domain.StatusUpdate) int { return a.At.Compare(b.At) })
	return updates, nil
}

// PurgeBefore drops parked updates that never found their recipient.
func (r *PgPendingStatusRepository) PurgeBefore(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM pending_status_updates WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge parked statuses: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.InfoContext(ctx, "Purged parked status updates", "count", n, "cutoff", cutoff)
	}
	return tag.RowsAffected(), nil
}
