package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

// Outcome of applying one status update.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeUnknown   Outcome = "unknown_recipient"
	// OutcomeParked means the provider id is not stamped on any row yet. The update is
	// stored and applied when the worker reports that id.
	OutcomeParked Outcome = "parked"
	// OutcomeOtherJob means a worker reported a recipient scoped to a different job.
	OutcomeOtherJob Outcome = "other_job"
)

// Reconciler folds delivery observations into recipient rows and recomputes job and message
// aggregates from the full set of recipient statuses.
type Reconciler struct {
	tx         database.Transactor
	recipients coredomain.RecipientRepository
	jobs       coredomain.JobRepository
	messages   coredomain.MessageRepository
	activity   coredomain.ActivityLogRepository
	pending    domain.PendingStatusRepository
	db         database.Querier
	logger     *slog.Logger
	now        func() time.Time
}

func NewReconciler(
	db database.Querier,
	tx database.Transactor,
	recipients coredomain.RecipientRepository,
	jobs coredomain.JobRepository,
	messages coredomain.MessageRepository,
	activity coredomain.ActivityLogRepository,
	pending domain.PendingStatusRepository,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		tx:         tx,
		recipients: recipients,
		jobs:       jobs,
		messages:   messages,
		activity:   activity,
		pending:    pending,
		db:         db,
		logger:     logger.With("component", "reconciler"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ApplyStatus applies one update in its own transaction. Reapplying an update is a no-op.
func (r *Reconciler) ApplyStatus(ctx context.Context, source string, u domain.StatusUpdate) (Outcome, error) {
	return r.apply(ctx, source, u, "")
}

func (r *Reconciler) apply(ctx context.Context, source string, u domain.StatusUpdate, jobID string) (Outcome, error) {
	start := time.Now()
	outcome, err := r.applyStatus(ctx, u, jobID)
	statusUpdateDurationHist.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		statusUpdatesCounter.WithLabelValues(source, "error").Inc()
		return "", err
	}
	statusUpdatesCounter.WithLabelValues(source, string(outcome)).Inc()
	return outcome, nil
}

// applyStatus folds u into its recipient row. A non-empty jobID restricts the update to rows
// scoped to that job.
func (r *Reconciler) applyStatus(ctx context.Context, u domain.StatusUpdate, jobID string) (Outcome, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}

	var finished *coredomain.MessageJob
	outcome := OutcomeUnchanged
	err := r.tx.RunInTx(ctx, func(q database.Querier) error {
		row, err := r.lockRecipient(ctx, q, u)
		if errors.Is(err, coredomain.ErrNotFound) && u.MessageRecipientID == "" && jobID == "" {
			outcome = OutcomeParked
			return r.pending.Park(ctx, q, u)
		}
		if err != nil {
			return err
		}
		if jobID != "" && (row.JobID == nil || *row.JobID != jobID) {
			outcome = OutcomeOtherJob
			return nil
		}
		stamping := row.ProviderMessageID == ""
		if !row.Apply(u.Delivery()) {
			return nil
		}
		outcome = OutcomeApplied
		if stamping && row.ProviderMessageID != "" {
			if err := r.drainParked(ctx, q, row); err != nil {
				return err
			}
		}
		if err := r.recipients.UpdateDelivery(ctx, q, row); err != nil {
			return err
		}
		if row.JobID != nil {
			if finished, err = r.rollupJob(ctx, q, *row.JobID); err != nil {
				return err
			}
		}
		return r.rollupMessage(ctx, q, row.MessageID)
	})
	if errors.Is(err, coredomain.ErrNotFound) {
		r.logger.WarnContext(ctx, "Status update for unknown recipient", "message_recipient_id", u.MessageRecipientID, "provider_message_id", u.ProviderMessageID)
		return OutcomeUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply status %s: %w", u.Status, err)
	}
	switch outcome {
	case OutcomeParked:
		r.logger.InfoContext(ctx, "Status update parked until the provider id is known", "provider_message_id", u.ProviderMessageID, "status", u.Status)
	case OutcomeOtherJob:
		r.logger.WarnContext(ctx, "Status update for a recipient outside the reported job", "job_id", jobID, "message_recipient_id", u.MessageRecipientID, "provider_message_id", u.ProviderMessageID)
	}
	if finished != nil {
		r.recordFinished(ctx, finished)
	}
	return outcome, nil
}

// lockRecipient locks the row u addresses. Callbacks addressed by provider id also take the
// provider id lock, so parking cannot interleave with the worker stamping that id.
func (r *Reconciler) lockRecipient(ctx context.Context, q database.Querier, u domain.StatusUpdate) (*coredomain.MessageRecipient, error) {
	id := u.MessageRecipientID
	if id == "" {
		if err := r.pending.Lock(ctx, q, u.ProviderMessageID); err != nil {
			return nil, err
		}
		found, err := r.recipients.FindByProviderMessageID(ctx, q, u.ProviderMessageID)
		if err != nil {
			return nil, err
		}
		id = found.ID
	}
	return r.recipients.GetForUpdate(ctx, q, id)
}

// drainParked applies the callbacks parked for the provider id just stamped on row.
func (r *Reconciler) drainParked(ctx context.Context, q database.Querier, row *coredomain.MessageRecipient) error {
	if err := r.pending.Lock(ctx, q, row.ProviderMessageID); err != nil {
		return err
	}
	parked, err := r.pending.Take(ctx, q, row.ProviderMessageID)
	if err != nil {
		return err
	}
	for _, p := range parked {
		row.Apply(p.Delivery())
	}
	if len(parked) > 0 {
		r.logger.InfoContext(ctx, "Applied parked status updates", "message_recipient_id", row.ID,
			"provider_message_id", row.ProviderMessageID, "count", len(parked), "status", row.Status)
	}
	return nil
}

// PurgeParked drops parked updates older than retention whose provider id never appeared.
func (r *Reconciler) PurgeParked(ctx context.Context, retention time.Duration) (int64, error) {
	return r.pending.PurgeBefore(ctx, r.db, r.now().Add(-retention))
}

// rollupJob recomputes a job from its scoped rows and returns it when this update finished it.
func (r *Reconciler) rollupJob(ctx context.Context, q database.Querier, jobID string) (*coredomain.MessageJob, error) {
	job, err := r.jobs.GetForUpdate(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	counts, err := r.recipients.CountByJob(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Rollup(coredomain.Summarize(counts), r.now()) {
		return nil, nil
	}
	if err := r.jobs.Update(ctx, q, job); err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	return nil, nil
}

func (r *Reconciler) rollupMessage(ctx context.Context, q database.Querier, messageID string) error {
	msg, err := r.messages.GetForUpdate(ctx, q, messageID)
	if err != nil {
		return err
	}
	counts, err := r.recipients.CountByMessage(ctx, q, messageID)
	if err != nil {
		return err
	}
	_, err = r.jobs.FindActiveByMessage(ctx, q, messageID)
	hasActive := err == nil
	if err != nil && !errors.Is(err, coredomain.ErrNotFound) {
		return err
	}
	msg.RollupMessage(coredomain.Summarize(counts), hasActive)
	return r.messages.UpdateCounts(ctx, q, msg)
}

func (r *Reconciler) recordFinished(ctx context.Context, job *coredomain.MessageJob) {
	r.logger.InfoContext(ctx, "Job finished", "job_id", job.ID, "message_id", job.MessageID, "status", job.Status,
		"successful_sent", job.SuccessfulSent, "failed", job.Failed)
	jobsFinishedCounter.WithLabelValues(string(job.Status)).Inc()
	entry := &coredomain.ActivityLog{
		EntityType: coredomain.EntityMessage,
		EntityID:   job.MessageID,
		Action:     coredomain.ActionJobFinished,
		ActorID:    "system",
		Details: map[string]any{
			"jobId": job.ID, "status": string(job.Status), "successfulSent": job.SuccessfulSent, "failed": job.Failed,
		},
	}
	if err := r.activity.Append(context.WithoutCancel(ctx), r.db, entry); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append activity log", "error", err, "job_id", job.ID)
	}
}

// ApplyJobUpdate applies a worker progress report. Per-recipient results are applied one
// transaction each and only to rows scoped to jobID. A worker-declared failure fails the
// recipients still pending in the job.
func (r *Reconciler) ApplyJobUpdate(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.JobUpdateResult, error) {
	job, err := r.jobs.GetByID(ctx, r.db, jobID)
	if err != nil {
		return nil, err
	}

	if update.Status == coredomain.JobInProgress {
		if err := r.startJob(ctx, jobID); err != nil {
			return nil, err
		}
	}

	res := &domain.JobUpdateResult{}
	for _, u := range update.Results {
		if u.MessageRecipientID == "" && u.ProviderMessageID == "" {
			res.Rejected++
			continue
		}
		outcome, err := r.apply(ctx, "worker", u, jobID)
		switch {
		case errors.Is(err, coredomain.ErrInvalidStatus):
			res.Rejected++
		case err != nil:
			return nil, err
		case outcome == OutcomeApplied:
			res.Applied++
		case outcome == OutcomeUnknown, outcome == OutcomeOtherJob:
			res.Rejected++
		default:
			res.Unchanged++
		}
	}

	if update.Status == coredomain.JobFailed {
		if err := r.failRemaining(ctx, job, update.Error); err != nil {
			return nil, err
		}
	}

	current, err := r.jobs.GetByID(ctx, r.db, jobID)
	if err != nil {
		return nil, err
	}
	res.JobStatus = current.Status
	r.logger.InfoContext(ctx, "Worker job update applied", "job_id", jobID, "reported_status", update.Status,
		"applied", res.Applied, "unchanged", res.Unchanged, "rejected", res.Rejected, "job_status", res.JobStatus)
	return res, nil
}

func (r *Reconciler) startJob(ctx context.Context, jobID string) error {
	return r.tx.RunInTx(ctx, func(q database.Querier) error {
		job, err := r.jobs.GetForUpdate(ctx, q, jobID)
		if err != nil {
			return err
		}
		if !job.Start(r.now()) {
			return nil
		}
		return r.jobs.Update(ctx, q, job)
	})
}

func (r *Reconciler) failRemaining(ctx context.Context, job *coredomain.MessageJob, reason string) error {
	if reason == "" {
		reason = "delivery worker reported the job as failed"
	}
	var finished *coredomain.MessageJob
	err := r.tx.RunInTx(ctx, func(q database.Querier) error {
		rows, err := r.recipients.ListByJob(ctx, q, job.ID)
		if err != nil {
			return err
		}
		var pending []string
		for _, row := range rows {
			if row.Status == coredomain.RecipientPending {
				pending = append(pending, row.ID)
			}
		}
		now := r.now()
		if err := r.recipients.MarkFailed(ctx, q, pending, reason, now); err != nil {
			return err
		}

		locked, err := r.jobs.GetForUpdate(ctx, q, job.ID)
		if err != nil {
			return err
		}
		if !locked.Status.Terminal() {
			counts, err := r.recipients.CountByJob(ctx, q, job.ID)
			if err != nil {
				return err
			}
			locked.Rollup(coredomain.Summarize(counts), now)
			if !locked.Status.Terminal() {
				locked.Fail(reason, now)
			}
			if locked.ErrorMessage == nil {
				locked.ErrorMessage = &reason
			}
			if err := r.jobs.Update(ctx, q, locked); err != nil {
				return err
			}
			finished = locked
		}
		return r.rollupMessage(ctx, q, job.MessageID)
	})
	if err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if finished != nil {
		r.recordFinished(ctx, finished)
	}
	return nil
}
