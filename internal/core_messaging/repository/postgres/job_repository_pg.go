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

const jobColumns = `id, message_id, status, priority, total_recipients, processed_recipients, successful_sent, failed,
	progress, metadata, error_message, scheduled_at, started_at, completed_at, created_at, updated_at`

const activeJobIndex = "uq_message_jobs_active"

type PgJobRepository struct {
	logger *slog.Logger
}

func NewPgJobRepository(logger *slog.Logger) *PgJobRepository {
	return &PgJobRepository{logger: logger.With("repository", "message_job")}
}

func scanJob(row pgx.Row) (*domain.MessageJob, error) {
	var j domain.MessageJob
	err := row.Scan(&j.ID, &j.MessageID, &j.Status, &j.Priority, &j.TotalRecipients, &j.ProcessedRecipients,
		&j.SuccessfulSent, &j.Failed, &j.Progress, &j.Metadata, &j.ErrorMessage, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a job. A second active job for the same message violates the partial unique
// index and is reported as domain.ErrActiveJobExists.
func (r *PgJobRepository) Create(ctx context.Context, q database.Querier, j *domain.MessageJob) error {
	query := `INSERT INTO message_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := q.Exec(ctx, query, j.ID, j.MessageID, string(j.Status), j.Priority, j.TotalRecipients, j.ProcessedRecipients,
		j.SuccessfulSent, j.Failed, j.Progress, j.Metadata, j.ErrorMessage, j.ScheduledAt, j.StartedAt, j.CompletedAt,
		j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, activeJobIndex) {
			return fmt.Errorf("create job for message %s: %w", j.MessageID, domain.ErrActiveJobExists)
		}
		r.logger.ErrorContext(ctx, "Failed to insert job", "error", err, "job_id", j.ID, "message_id", j.MessageID)
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PgJobRepository) GetByID(ctx context.Context, q database.Querier, id string) (*domain.MessageJob, error) {
	j, err := scanJob(q.QueryRow(ctx, `SELECT `+jobColumns+` FROM message_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, notFound(err))
	}
	return j, nil
}

func (r *PgJobRepository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.MessageJob, error) {
	j, err := scanJob(q.QueryRow(ctx, `SELECT `+jobColumns+` FROM message_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", id, notFound(err))
	}
	return j, nil
}

func (r *PgJobRepository) FindActiveByMessage(ctx context.Context, q database.Querier, messageID string) (*domain.MessageJob, error) {
	j, err := scanJob(q.QueryRow(ctx, `SELECT `+jobColumns+` FROM message_jobs
		WHERE message_id = $1 AND status IN ('queued', 'in_progress') LIMIT 1`, messageID))
	if err != nil {
		return nil, fmt.Errorf("find active job for message %s: %w", messageID, notFound(err))
	}
	return j, nil
}

func (r *PgJobRepository) LatestByMessage(ctx context.Context, q database.Querier, messageID string) (*domain.MessageJob, error) {
	j, err := scanJob(q.QueryRow(ctx, `SELECT `+jobColumns+` FROM message_jobs
		WHERE message_id = $1 ORDER BY created_at DESC LIMIT 1`, messageID))
	if err != nil {
		return nil, fmt.Errorf("latest job for message %s: %w", messageID, notFound(err))
	}
	return j, nil
}

// AcquireDueScheduled claims queued jobs whose schedule has passed by clearing scheduled_at.
// SKIP LOCKED lets several pollers run without claiming the same job twice.
func (r *PgJobRepository) AcquireDueScheduled(ctx context.Context, q database.Querier, now time.Time, limit int) ([]*domain.MessageJob, error) {
	rows, err := q.Query(ctx, `UPDATE message_jobs SET scheduled_at = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM message_jobs
			WHERE status = 'queued' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
			ORDER BY priority DESC, scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("acquire due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.MessageJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PgJobRepository) Update(ctx context.Context, q database.Querier, j *domain.MessageJob) error {
	tag, err := q.Exec(ctx, `UPDATE message_jobs
		SET status = $2, total_recipients = $3, processed_recipients = $4, successful_sent = $5, failed = $6,
			progress = $7, metadata = $8, error_message = $9, started_at = $10, completed_at = $11, updated_at = NOW()
		WHERE id = $1`,
		j.ID, string(j.Status), j.TotalRecipients, j.ProcessedRecipients, j.SuccessfulSent, j.Failed,
		j.Progress, j.Metadata, j.ErrorMessage, j.StartedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", j.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PgJobRepository) MarkFailed(ctx context.Context, q database.Querier, id, reason string, at time.Time) error {
	_, err := q.Exec(ctx, `UPDATE message_jobs SET status = 'failed', error_message = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'in_progress')`, id, reason, at)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}
