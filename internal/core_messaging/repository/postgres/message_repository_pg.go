package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

const messageColumns = `id, branch_id, title, template_id, body, recipient_type, status,
	total_recipients, successful_sent, failed, scheduled_at, created_by, created_at, updated_at`

type PgMessageRepository struct {
	logger *slog.Logger
}

func NewPgMessageRepository(logger *slog.Logger) *PgMessageRepository {
	return &PgMessageRepository{logger: logger.With("repository", "message")}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.BranchID, &m.Title, &m.TemplateID, &m.Body, &m.RecipientType, &m.Status,
		&m.TotalRecipients, &m.SuccessfulSent, &m.Failed, &m.ScheduledAt, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PgMessageRepository) Create(ctx context.Context, q database.Querier, m *domain.Message) error {
	query := `INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := q.Exec(ctx, query, m.ID, m.BranchID, m.Title, m.TemplateID, m.Body, m.RecipientType, m.Status,
		m.TotalRecipients, m.SuccessfulSent, m.Failed, m.ScheduledAt, m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert message", "error", err, "message_id", m.ID)
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PgMessageRepository) GetByID(ctx context.Context, q database.Querier, id string) (*domain.Message, error) {
	m, err := scanMessage(q.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, notFound(err))
	}
	return m, nil
}

func (r *PgMessageRepository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.Message, error) {
	m, err := scanMessage(q.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock message %s: %w", id, notFound(err))
	}
	return m, nil
}

func (r *PgMessageRepository) ListByBranch(ctx context.Context, q database.Querier, branchID string, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE branch_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, branchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PgMessageRepository) UpdateStatus(ctx context.Context, q database.Querier, id string, status domain.MessageStatus) error {
	tag, err := q.Exec(ctx, `UPDATE messages SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update message status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgMessageRepository) UpdateCounts(ctx context.Context, q database.Querier, m *domain.Message) error {
	_, err := q.Exec(ctx, `UPDATE messages SET status = $2, total_recipients = $3, successful_sent = $4, failed = $5, updated_at = NOW()
		WHERE id = $1`, m.ID, m.Status, m.TotalRecipients, m.SuccessfulSent, m.Failed)
	if err != nil {
		return fmt.Errorf("update message counts: %w", err)
	}
	return nil
}
