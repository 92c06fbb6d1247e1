package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

// RetryResult reports the outcome of a retry. NothingToRetry is a normal result, not an error.
type RetryResult struct {
	MessageID      string `json:"messageId"`
	JobID          string `json:"jobId,omitempty"`
	RetriedCount   int    `json:"retriedCount"`
	NothingToRetry bool   `json:"nothingToRetry"`
}

// Retry re-dispatches the failed recipients of a message, optionally narrowed to recipientIDs,
// in a new high-priority job. Recipients that succeeded are never touched.
func (s *DispatchService) Retry(ctx context.Context, actor authz.Actor, messageID string, recipientIDs []string) (*RetryResult, error) {
	res, err := s.retry(ctx, actor, messageID, recipientIDs)
	switch {
	case err == nil && res.NothingToRetry:
		retryRequestsCounter.WithLabelValues("nothing_to_retry").Inc()
	case err == nil:
		retryRequestsCounter.WithLabelValues("accepted").Inc()
	case errors.Is(err, coredomain.ErrDispatchTrigger):
		retryRequestsCounter.WithLabelValues("dispatch_failed").Inc()
	default:
		retryRequestsCounter.WithLabelValues("rejected").Inc()
	}
	return res, err
}

func (s *DispatchService) retry(ctx context.Context, actor authz.Actor, messageID string, only []string) (*RetryResult, error) {
	msg, err := s.Messages.GetByID(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.Checker, actor, authz.PermMessagesSend, msg.BranchID); err != nil {
		return nil, err
	}

	active, err := s.Jobs.FindActiveByMessage(ctx, s.DB, messageID)
	if err != nil && !errors.Is(err, coredomain.ErrNotFound) {
		return nil, err
	}
	if active != nil {
		return nil, coredomain.ErrActiveJobExists
	}

	failed, err := s.Recipients.ListFailed(ctx, s.DB, messageID, only)
	if err != nil {
		return nil, err
	}
	failed = phoneValid(failed)
	if len(failed) == 0 {
		s.logger.InfoContext(ctx, "Nothing to retry", "message_id", messageID)
		return &RetryResult{MessageID: messageID, NothingToRetry: true}, nil
	}

	previous, err := s.Jobs.LatestByMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	templateID := previous.Metadata.TemplateID
	if templateID == "" && msg.TemplateID != nil {
		templateID = *msg.TemplateID
	}
	p, err := s.plan(ctx, templateID, msg.BranchID, previous.Metadata.TemplateParameters, previous.Metadata.TemplateDataMappings, asRecipients(failed))
	if err != nil {
		return nil, err
	}

	now := s.now()
	ids := recipientIDs(failed)
	job := &coredomain.MessageJob{
		ID:              uuid.NewString(),
		MessageID:       messageID,
		Status:          coredomain.JobQueued,
		Priority:        coredomain.PriorityRetry,
		TotalRecipients: len(failed),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	job.Metadata = s.metadata(p, previous.Metadata.TemplateParameters, previous.Metadata.TemplateDataMappings, previous.Metadata.DryRun, ids)
	job.Metadata.IsRetry = true
	job.Metadata.RetryOf = previous.ID

	err = s.Tx.RunInTx(ctx, func(q database.Querier) error {
		if err := s.Jobs.Create(ctx, q, job); err != nil {
			return err
		}
		if err := s.Recipients.ResetForRetry(ctx, q, job.ID, ids); err != nil {
			return err
		}
		locked, err := s.Messages.GetForUpdate(ctx, q, messageID)
		if err != nil {
			return err
		}
		counts, err := s.Recipients.CountByMessage(ctx, q, messageID)
		if err != nil {
			return err
		}
		locked.RollupMessage(coredomain.Summarize(counts), true)
		locked.Status = coredomain.MessageSending
		msg = locked
		return s.Messages.UpdateCounts(ctx, q, locked)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create retry job", "error", err, "message_id", messageID)
		return nil, err
	}
	for _, row := range failed {
		row.ResetForRetry(job.ID)
	}

	s.Activity.Record(ctx, coredomain.EntityMessage, messageID, coredomain.ActionRetryRequested, actor.UserID, map[string]any{
		"jobId": job.ID, "retryOf": previous.ID, "recipients": len(ids),
	})

	if err := s.dispatch(ctx, actor.UserID, "retry", messageID, job, buildPayload(msg, job, p, failed)); err != nil {
		return nil, err
	}
	return &RetryResult{MessageID: messageID, JobID: job.ID, RetriedCount: len(ids)}, nil
}

func phoneValid(rows []*coredomain.MessageRecipient) []*coredomain.MessageRecipient {
	out := rows[:0:0]
	for _, r := range rows {
		if r.PhoneValid {
			out = append(out, r)
		}
	}
	return out
}
