package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

const recipientColumns = `id, message_id, job_id, recipient_type, recipient_id, name, phone, phone_valid, status, data,
	provider_message_id, error_message, sent_at, delivered_at, read_at, failed_at, created_at, updated_at`

var recipientCopyColumns = []string{
	"id", "message_id", "job_id", "recipient_type", "recipient_id", "name", "phone", "phone_valid",
	"status", "data", "created_at", "updated_at",
}

type PgRecipientRepository struct {
	logger *slog.Logger
}

func NewPgRecipientRepository(logger *slog.Logger) *PgRecipientRepository {
	return &PgRecipientRepository{logger: logger.With("repository", "message_recipient")}
}

func scanRecipient(row pgx.Row) (*domain.MessageRecipient, error) {
	var mr domain.MessageRecipient
	err := row.Scan(&mr.ID, &mr.MessageID, &mr.JobID, &mr.RecipientType, &mr.RecipientID, &mr.Name, &mr.Phone,
		&mr.PhoneValid, &mr.Status, &mr.Data, &mr.ProviderMessageID, &mr.ErrorMessage,
		&mr.SentAt, &mr.DeliveredAt, &mr.ReadAt, &mr.FailedAt, &mr.CreatedAt, &mr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

func collectRecipients(rows pgx.Rows) ([]*domain.MessageRecipient, error) {
	defer rows.Close()
	var out []*domain.MessageRecipient
	for rows.Next() {
		mr, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message recipient: %w", err)
		}
		out = append(out, mr)
	}
	return out, rows.Err()
}

// CreateBatch bulk-inserts recipient rows with COPY.
func (r *PgRecipientRepository) CreateBatch(ctx context.Context, q database.Querier, recipients []*domain.MessageRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(recipients))
	for _, mr := range recipients {
		data := mr.Data
		if data == nil {
			data = map[string]any{}
		}
		rows = append(rows, []any{
			mr.ID, mr.MessageID, mr.JobID, string(mr.RecipientType), mr.RecipientID, mr.Name, mr.Phone, mr.PhoneValid,
			string(mr.Status), data, mr.CreatedAt, mr.UpdatedAt,
		})
	}
	n, err := q.CopyFrom(ctx, pgx.Identifier{"message_recipients"}, recipientCopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to copy message recipients", "error", err, "count", len(rows))
		return fmt.Errorf("copy message recipients: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy message recipients: inserted %d of %d rows", n, len(rows))
	}
	return nil
}

func (r *PgRecipientRepository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.MessageRecipient, error) {
	mr, err := scanRecipient(q.QueryRow(ctx, `SELECT `+recipientColumns+` FROM message_recipients WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock message recipient %s: %w", id, notFound(err))
	}
	return mr, nil
}

// FindByProviderMessageID locks the row addressed by a provider callback.
func (r *PgRecipientRepository) FindByProviderMessageID(ctx context.Context, q database.Querier, providerMessageID string) (*domain.MessageRecipient, error) {
	mr, err := scanRecipient(q.QueryRow(ctx, `SELECT `+recipientColumns+` FROM message_recipients
		WHERE provider_message_id = $1 ORDER BY updated_at DESC LIMIT 1 FOR UPDATE`, providerMessageID))
	if err != nil {
		return nil, fmt.Errorf("find message recipient by provider id %s: %w", providerMessageID, notFound(err))
	}
	return mr, nil
}

func (r *PgRecipientRepository) ListByMessage(ctx context.Context, q database.Querier, messageID string) ([]*domain.MessageRecipient, error) {
	rows, err := q.Query(ctx, `SELECT `+recipientColumns+` FROM message_recipients WHERE message_id = $1
		ORDER BY created_at, name`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list message recipients: %w", err)
	}
	return collectRecipients(rows)
}

func (r *PgRecipientRepository) ListByJob(ctx context.Context, q database.Querier, jobID string) ([]*domain.MessageRecipient, error) {
	rows, err := q.Query(ctx, `SELECT `+recipientColumns+` FROM message_recipients WHERE job_id = $1
		ORDER BY created_at, name`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job recipients: %w", err)
	}
	return collectRecipients(rows)
}

// ListFailed returns failed rows of a message, narrowed to ids when ids is non-empty.
func (r *PgRecipientRepository) ListFailed(ctx context.Context, q database.Querier, messageID string, ids []string) ([]*domain.MessageRecipient, error) {
	var filter []string
	if len(ids) > 0 {
		filter = ids
	}
	rows, err := q.Query(ctx, `SELECT `+recipientColumns+` FROM message_recipients
		WHERE message_id = $1 AND status = 'failed' AND phone_valid
		AND ($2::text[] IS NULL OR id::text = ANY($2::text[]))
		ORDER BY created_at, name`, messageID, filter)
	if err != nil {
		return nil, fmt.Errorf("list failed recipients: %w", err)
	}
	return collectRecipients(rows)
}

// ResetForRetry moves failed rows back to pending under jobID. It fails when any row is no longer failed,
// so the caller's job totals stay consistent with the rows it owns.
func (r *PgRecipientRepository) ResetForRetry(ctx context.Context, q database.Querier, jobID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := q.Exec(ctx, `UPDATE message_recipients
		SET status = 'pending', error_message = '', failed_at = NULL, job_id = $1, updated_at = NOW()
		WHERE id::text = ANY($2::text[]) AND status = 'failed'`, jobID, ids)
	if err != nil {
		return fmt.Errorf("reset recipients for retry: %w", err)
	}
	if n := tag.RowsAffected(); int(n) != len(ids) {
		r.logger.WarnContext(ctx, "Some recipients changed status before retry reset", "job_id", jobID, "requested", len(ids), "reset", n)
		return fmt.Errorf("%w: reset %d of %d recipients for job %s", domain.ErrRecipientsChanged, n, len(ids), jobID)
	}
	return nil
}

// MarkFailed fails pending rows, used when a job could not be handed to the worker.
func (r *PgRecipientRepository) MarkFailed(ctx context.Context, q database.Querier, ids []string, reason string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `UPDATE message_recipients
		SET status = 'failed', error_message = $2, failed_at = COALESCE(failed_at, $3), updated_at = NOW()
		WHERE id::text = ANY($1::text[]) AND status = 'pending'`, ids, reason, at)
	if err != nil {
		return fmt.Errorf("mark recipients failed: %w", err)
	}
	return nil
}

func (r *PgRecipientRepository) UpdateDelivery(ctx context.Context, q database.Querier, mr *domain.MessageRecipient) error {
	_, err := q.Exec(ctx, `UPDATE message_recipients
		SET status = $2, provider_message_id = $3, error_message = $4,
			sent_at = $5, delivered_at = $6, read_at = $7, failed_at = $8, updated_at = NOW()
		WHERE id = $1`,
		mr.ID, string(mr.Status), mr.ProviderMessageID, mr.ErrorMessage, mr.SentAt, mr.DeliveredAt, mr.ReadAt, mr.FailedAt)
	if err != nil {
		return fmt.Errorf("update recipient delivery: %w", err)
	}
	return nil
}

func (r *PgRecipientRepository) CountByJob(ctx context.Context, q database.Querier, jobID string) (domain.StatusCounts, error) {
	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM message_recipients WHERE job_id = $1 GROUP BY status`, jobID)
	if err != nil {
		return nil, fmt.Errorf("count job recipients: %w", err)
	}
	return collectCounts(rows)
}

// CountByMessage counts only phone-valid rows; invalid rows are history, not sends.
func (r *PgRecipientRepository) CountByMessage(ctx context.Context, q database.Querier, messageID string) (domain.StatusCounts, error) {
	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM message_recipients
		WHERE message_id = $1 AND phone_valid GROUP BY status`, messageID)
	if err != nil {
		return nil, fmt.Errorf("count message recipients: %w", err)
	}
	return collectCounts(rows)
}

func collectCounts(rows pgx.Rows) (domain.StatusCounts, error) {
	defer rows.Close()
	counts := domain.StatusCounts{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.RecipientStatus(status)] = int(n)
	}
	return counts, rows.Err()
}
