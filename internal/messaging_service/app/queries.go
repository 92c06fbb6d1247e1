package app

import (
	"context"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// JobStatus is the polling view of a job.
type JobStatus struct {
	JobID               string               `json:"jobId"`
	MessageID           string               `json:"messageId"`
	Status              coredomain.JobStatus `json:"status"`
	Progress            float64              `json:"progress"`
	TotalRecipients     int                  `json:"totalRecipients"`
	ProcessedRecipients int                  `json:"processedRecipients"`
	SuccessfulSent      int                  `json:"successfulSent"`
	Failed              int                  `json:"failed"`
	ErrorMessage        *string              `json:"errorMessage"`
	IsRetry             bool                 `json:"isRetry"`
	StartedAt           *time.Time           `json:"startedAt"`
	CompletedAt         *time.Time           `json:"completedAt"`
}

func (s *DispatchService) GetJobStatus(ctx context.Context, actor authz.Actor, jobID string) (*JobStatus, error) {
	job, err := s.Jobs.GetByID(ctx, s.DB, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetMessage(ctx, actor, job.MessageID); err != nil {
		return nil, err
	}
	st := &JobStatus{
		JobID:               job.ID,
		MessageID:           job.MessageID,
		Status:              job.Status,
		Progress:            job.Progress,
		TotalRecipients:     job.TotalRecipients,
		ProcessedRecipients: job.ProcessedRecipients,
		SuccessfulSent:      job.SuccessfulSent,
		Failed:              job.Failed,
		ErrorMessage:        job.ErrorMessage,
		IsRetry:             job.Metadata.IsRetry,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
	}
	return st, nil
}

// GetMessage loads a message and checks read access to its branch.
func (s *DispatchService) GetMessage(ctx context.Context, actor authz.Actor, messageID string) (*coredomain.Message, error) {
	msg, err := s.Messages.GetByID(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.Checker, actor, authz.PermMessagesRead, msg.BranchID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *DispatchService) ListMessages(ctx context.Context, actor authz.Actor, branchID string, limit, offset int) ([]*coredomain.Message, error) {
	if err := authorize(ctx, s.Checker, actor, authz.PermMessagesRead, branchID); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	return s.Messages.ListByBranch(ctx, s.DB, branchID, limit, offset)
}

// ListRecipients returns every materialized row of a message, phone-invalid ones included.
func (s *DispatchService) ListRecipients(ctx context.Context, actor authz.Actor, messageID string) ([]*coredomain.MessageRecipient, error) {
	if _, err := s.GetMessage(ctx, actor, messageID); err != nil {
		return nil, err
	}
	return s.Recipients.ListByMessage(ctx, s.DB, messageID)
}

// ListActivity returns the audit trail of a message, newest first.
func (s *DispatchService) ListActivity(ctx context.Context, actor authz.Actor, messageID string, limit int) ([]*coredomain.ActivityLog, error) {
	if _, err := s.GetMessage(ctx, actor, messageID); err != nil {
		return nil, err
	}
	limit, _ = page(limit, 0)
	return s.Activity.List(ctx, coredomain.EntityMessage, messageID, limit)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
