package domain

import (
	"context"
	"time"

	"github.com/campusline/comms_services/internal/platform/database"
)

// PendingStatusRepository parks provider callbacks whose provider message id is not yet
// stamped on any recipient row.
type PendingStatusRepository interface {
	// Lock serializes parking and draining for one provider message id until the transaction ends.
	Lock(ctx context.Context, q database.Querier, providerMessageID string) error
	Park(ctx context.Context, q database.Querier, u StatusUpdate) error
	// Take removes and returns the parked updates of one provider message id, oldest first.
	Take(ctx context.Context, q database.Querier, providerMessageID string) ([]StatusUpdate, error)
	PurgeBefore(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error)
}
