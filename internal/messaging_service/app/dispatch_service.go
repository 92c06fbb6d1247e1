package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	pbdomain "github.com/campusline/comms_services/internal/phonebook_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

// RecipientResolver expands a target spec into recipients.
type RecipientResolver interface {
	Resolve(ctx context.Context, actor authz.Actor, spec pbdomain.TargetSpec) ([]coredomain.Recipient, error)
}

// SendRequest starts a broadcast. Recipients take precedence over Target.
type SendRequest struct {
	Title                string
	TemplateID           string
	CustomMessage        string
	RecipientType        string
	Recipients           []coredomain.Recipient
	Target               *pbdomain.TargetSpec
	TemplateParameters   map[string]string
	TemplateDataMappings []coredomain.DataMapping
	ScheduledAt          *time.Time
	BranchID             string
	DryRun               bool
}

// SendResult is returned as soon as the job is handed off. Counts are always zero here;
// progress is read through the job status.
type SendResult struct {
	MessageID       string                   `json:"messageId"`
	JobID           string                   `json:"jobId"`
	Status          coredomain.MessageStatus `json:"status"`
	TotalRecipients int                      `json:"totalRecipients"`
	SuccessfulSent  int                      `json:"successfulSent"`
	Failed          int                      `json:"failed"`
	Warnings        []string                 `json:"warnings,omitempty"`
}

// DispatchConfig holds the tunables of the dispatch path.
type DispatchConfig struct {
	DefaultRegion  string
	TriggerTimeout time.Duration
}

// DispatchDeps are the collaborators of DispatchService.
type DispatchDeps struct {
	DB          database.Querier
	Tx          database.Transactor
	Messages    coredomain.MessageRepository
	Recipients  coredomain.RecipientRepository
	Jobs        coredomain.JobRepository
	Templates   coredomain.TemplateRepository
	Credentials coredomain.CredentialsRepository
	Trigger     coredomain.DispatchTrigger
	Resolver    RecipientResolver
	Activity    *ActivityRecorder
	Checker     authz.Checker
}

// DispatchService creates messages and jobs and hands them to the delivery worker.
type DispatchService struct {
	DispatchDeps
	cfg    DispatchConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatchService(deps DispatchDeps, cfg DispatchConfig, logger *slog.Logger) *DispatchService {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 10 * time.Second
	}
	return &DispatchService{
		DispatchDeps: deps,
		cfg:          cfg,
		logger:       logger.With("service", "dispatch_job_manager"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// preparedRecipient is a resolved recipient with its normalized phone.
type preparedRecipient struct {
	rec   coredomain.Recipient
	phone string
	valid bool
}

// sendPlan is everything a dispatch needs once its preconditions hold.
type sendPlan struct {
	template *coredomain.Template
	creds    *coredomain.ProviderCredentials
	bind     *BindResult
}

// Send validates a broadcast, persists it and triggers the worker.
// Every precondition is checked before the first write.
func (s *DispatchService) Send(ctx context.Context, actor authz.Actor, req SendRequest) (*SendResult, error) {
	res, err := s.send(ctx, actor, req)
	switch {
	case err == nil && res.Status == coredomain.MessageScheduled:
		sendRequestsCounter.WithLabelValues("scheduled").Inc()
	case err == nil:
		sendRequestsCounter.WithLabelValues("accepted").Inc()
	case errors.Is(err, coredomain.ErrDispatchTrigger):
		sendRequestsCounter.WithLabelValues("dispatch_failed").Inc()
	default:
		sendRequestsCounter.WithLabelValues("rejected").Inc()
	}
	return res, err
}

func (s *DispatchService) send(ctx context.Context, actor authz.Actor, req SendRequest) (*SendResult, error) {
	if err := authorize(ctx, s.Checker, actor, authz.PermMessagesSend, req.BranchID); err != nil {
		return nil, err
	}
	if req.TemplateID == "" {
		if strings.TrimSpace(req.CustomMessage) != "" {
			return nil, fmt.Errorf("%w: custom message sends", coredomain.ErrNotImplemented)
		}
		return nil, fmt.Errorf("%w: a template is required", coredomain.ErrInvalidTemplate)
	}

	recipients := req.Recipients
	if len(recipients) == 0 && req.Target != nil {
		spec := *req.Target
		if spec.BranchID == "" {
			spec.BranchID = req.BranchID
		}
		resolved, err := s.Resolver.Resolve(ctx, actor, spec)
		if err != nil {
			return nil, err
		}
		recipients = resolved
	}

	// normalize phones and keep the sendable ones
	prepared, valid := s.prepare(recipients)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %d recipient(s) resolved", coredomain.ErrNoValidRecipients, len(recipients))
	}

	// template, parameters and credentials, all checked before any write
	p, err := s.plan(ctx, req.TemplateID, req.BranchID, req.TemplateParameters, req.TemplateDataMappings, valid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	scheduled := req.ScheduledAt != nil && req.ScheduledAt.After(now)
	tplID := p.template.ID
	msg := &coredomain.Message{
		ID:              uuid.NewString(),
		BranchID:        req.BranchID,
		Title:           req.Title,
		TemplateID:      &tplID,
		RecipientType:   req.RecipientType,
		Status:          coredomain.MessagePending,
		TotalRecipients: len(valid),
		CreatedBy:       actor.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if scheduled {
		msg.ScheduledAt = req.ScheduledAt
	}

	job := &coredomain.MessageJob{
		ID:              uuid.NewString(),
		MessageID:       msg.ID,
		Status:          coredomain.JobQueued,
		Priority:        coredomain.PriorityNormal,
		TotalRecipients: len(valid),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if scheduled {
		job.ScheduledAt = req.ScheduledAt
	}

	rows := make([]*coredomain.MessageRecipient, 0, len(prepared))
	sendRows := make([]*coredomain.MessageRecipient, 0, len(valid))
	for _, pr := range prepared {
		row := &coredomain.MessageRecipient{
			ID:            uuid.NewString(),
			MessageID:     msg.ID,
			RecipientType: pr.rec.Type,
			RecipientID:   pr.rec.ID,
			Name:          pr.rec.Name,
			Phone:         pr.phone,
			PhoneValid:    pr.valid,
			Status:        coredomain.RecipientPending,
			Data:          pr.rec.DataFields(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if pr.valid {
			row.JobID = &job.ID
			sendRows = append(sendRows, row)
		}
		rows = append(rows, row)
	}
	job.Metadata = s.metadata(p, req.TemplateParameters, req.TemplateDataMappings, req.DryRun, recipientIDs(sendRows))

	finalStatus := coredomain.MessageSending
	if scheduled {
		finalStatus = coredomain.MessageScheduled
	}

	// message, recipients and job are written together
	err = s.Tx.RunInTx(ctx, func(q database.Querier) error {
		if err := s.Messages.Create(ctx, q, msg); err != nil {
			return err
		}
		if err := s.Recipients.CreateBatch(ctx, q, rows); err != nil {
			return err
		}
		if err := s.Jobs.Create(ctx, q, job); err != nil {
			return err
		}
		return s.Messages.UpdateStatus(ctx, q, msg.ID, finalStatus)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist message", "error", err, "message_id", msg.ID)
		return nil, err
	}
	msg.Status = finalStatus
	materializedRecipientsCounter.WithLabelValues("true").Add(float64(len(valid)))
	materializedRecipientsCounter.WithLabelValues("false").Add(float64(len(rows) - len(valid)))

	action := coredomain.ActionMessageCreated
	if scheduled {
		action = coredomain.ActionMessageScheduled
	}
	s.Activity.Record(ctx, coredomain.EntityMessage, msg.ID, action, actor.UserID, map[string]any{
		"jobId": job.ID, "templateId": tplID, "totalRecipients": len(rows), "validRecipients": len(valid),
		"dryRun": req.DryRun, "warnings": p.bind.Warnings,
	})

	result := &SendResult{
		MessageID:       msg.ID,
		JobID:           job.ID,
		Status:          finalStatus,
		TotalRecipients: msg.TotalRecipients,
		Warnings:        p.bind.Warnings,
	}
	if scheduled {
		s.logger.InfoContext(ctx, "Message scheduled", "message_id", msg.ID, "job_id", job.ID, "scheduled_at", req.ScheduledAt)
		return result, nil
	}

	payload := buildPayload(msg, job, p, sendRows)
	if err := s.dispatch(ctx, actor.UserID, "send", msg.ID, job, payload); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DispatchService) prepare(recipients []coredomain.Recipient) (all []preparedRecipient, valid []coredomain.Recipient) {
	all = make([]preparedRecipient, 0, len(recipients))
	for _, rec := range recipients {
		phone, ok := coredomain.NormalizePhone(rec.Phone, s.cfg.DefaultRegion)
		all = append(all, preparedRecipient{rec: rec, phone: phone, valid: ok})
		if ok {
			valid = append(valid, rec)
		}
	}
	return all, valid
}

// plan loads the template and credentials and binds parameters for recipients.
func (s *DispatchService) plan(ctx context.Context, templateID, branchID string, params map[string]string, mappings []coredomain.DataMapping, recipients []coredomain.Recipient) (*sendPlan, error) {
	tpl, err := s.Templates.GetByID(ctx, s.DB, templateID)
	if err != nil {
		return nil, err
	}
	if err := tpl.CheckSendable(); err != nil {
		return nil, err
	}
	bind, err := Bind(tpl, params, mappings, recipients)
	if err != nil {
		return nil, err
	}
	creds, err := s.Credentials.GetByBranch(ctx, s.DB, branchID)
	if err != nil {
		if errors.Is(err, coredomain.ErrNotFound) {
			return nil, fmt.Errorf("%w: branch %s has no WhatsApp settings", coredomain.ErrMissingCredentials, branchID)
		}
		return nil, err
	}
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: branch %s", coredomain.ErrMissingCredentials, branchID)
	}
	return &sendPlan{template: tpl, creds: creds, bind: bind}, nil
}

func (s *DispatchService) metadata(p *sendPlan, params map[string]string, mappings []coredomain.DataMapping, dryRun bool, ids []string) coredomain.JobMetadata {
	return coredomain.JobMetadata{
		TemplateID:           p.template.ID,
		TemplateName:         p.template.Name,
		ProviderName:         p.template.ProviderName,
		Language:             providerLanguage(p.template),
		TemplateParameters:   params,
		TemplateDataMappings: mappings,
		DryRun:               dryRun,
		RecipientIDs:         ids,
		Warnings:             p.bind.Warnings,
	}
}

func providerLanguage(t *coredomain.Template) string {
	if t.ProviderLanguage != "" {
		return t.ProviderLanguage
	}
	return t.Language
}

func recipientIDs(rows []*coredomain.MessageRecipient) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

// buildPayload assembles the worker handoff. rows must be aligned with p.bind.Recipients.
func buildPayload(msg *coredomain.Message, job *coredomain.MessageJob, p *sendPlan, rows []*coredomain.MessageRecipient) coredomain.DispatchPayload {
	tpl := p.template
	payload := coredomain.DispatchPayload{
		JobID:     job.ID,
		MessageID: msg.ID,
		BranchID:  msg.BranchID,
		TemplateData: coredomain.TemplateData{
			ID:           tpl.ID,
			Name:         tpl.Name,
			ProviderName: tpl.ProviderName,
			Language:     providerLanguage(tpl),
			Category:     tpl.Category,
			Variables:    TemplateVariables(tpl),
			Header:       tpl.Header,
		},
		Recipients:           make([]coredomain.DispatchRecipient, 0, len(rows)),
		TemplateParameters:   p.bind.Global,
		TemplateDataMappings: job.Metadata.TemplateDataMappings,
		ProviderCredentials:  *p.creds,
		DryRun:               job.Metadata.DryRun,
		IsRetry:              job.Metadata.IsRetry,
		Priority:             job.Priority,
	}
	for i, row := range rows {
		payload.Recipients = append(payload.Recipients, coredomain.DispatchRecipient{
			MessageRecipientID: row.ID,
			ID:                 row.RecipientID,
			Name:               row.Name,
			Phone:              row.Phone,
			Type:               row.RecipientType,
			Additional:         row.Data,
			Parameters:         p.bind.Recipients[i],
		})
	}
	return payload
}

// dispatch triggers the worker within the configured timeout. On failure the job, its pending
// recipients and the message are failed before the error is returned.
func (s *DispatchService) dispatch(ctx context.Context, actorID, kind, messageID string, job *coredomain.MessageJob, payload coredomain.DispatchPayload) error {
	triggerCtx, cancel := context.WithTimeout(ctx, s.cfg.TriggerTimeout)
	start := time.Now()
	err := s.Trigger.Trigger(triggerCtx, payload)
	cancel()

	if err == nil {
		dispatchTriggerDurationHist.WithLabelValues(kind, "ok").Observe(time.Since(start).Seconds())
		s.Activity.Record(ctx, coredomain.EntityMessage, messageID, coredomain.ActionDispatchTriggered, actorID, map[string]any{
			"jobId": job.ID, "recipients": len(payload.Recipients), "isRetry": payload.IsRetry,
		})
		s.logger.InfoContext(ctx, "Job handed to delivery worker", "job_id", job.ID, "message_id", messageID, "recipients", len(payload.Recipients))
		return nil
	}
	dispatchTriggerDurationHist.WithLabelValues(kind, "error").Observe(time.Since(start).Seconds())

	reason := err.Error()
	s.logger.ErrorContext(ctx, "Failed to trigger delivery worker", "error", err, "job_id", job.ID, "message_id", messageID)
	if ferr := s.failDispatch(context.WithoutCancel(ctx), messageID, job, job.Metadata.RecipientIDs, reason); ferr != nil {
		s.logger.ErrorContext(ctx, "Failed to record dispatch failure", "error", ferr, "job_id", job.ID)
	}
	s.Activity.Record(ctx, coredomain.EntityMessage, messageID, coredomain.ActionDispatchFailed, actorID, map[string]any{
		"jobId": job.ID, "error": reason,
	})
	return fmt.Errorf("%w: %v", coredomain.ErrDispatchTrigger, err)
}

// failDispatch marks the scoped pending recipients and the job failed and rolls the message up
// in one transaction.
func (s *DispatchService) failDispatch(ctx context.Context, messageID string, job *coredomain.MessageJob, ids []string, reason string) error {
	now := s.now()
	return s.Tx.RunInTx(ctx, func(q database.Querier) error {
		if err := s.Recipients.MarkFailed(ctx, q, ids, reason, now); err != nil {
			return err
		}
		jobCounts, err := s.Recipients.CountByJob(ctx, q, job.ID)
		if err != nil {
			return err
		}
		job.Abort(coredomain.Summarize(jobCounts), reason, now)
		if err := s.Jobs.Update(ctx, q, job); err != nil {
			return err
		}

		msg, err := s.Messages.GetForUpdate(ctx, q, messageID)
		if err != nil {
			return err
		}
		msgCounts, err := s.Recipients.CountByMessage(ctx, q, messageID)
		if err != nil {
			return err
		}
		msg.RollupMessage(coredomain.Summarize(msgCounts), false)
		// earlier successes of a retried message keep it sent
		if msg.Status != coredomain.MessageSent {
			msg.Status = coredomain.MessageFailed
		}
		return s.Messages.UpdateCounts(ctx, q, msg)
	})
}

// DispatchQueuedJob triggers a queued job claimed by the scheduler. The payload is rebuilt
// from the stored rows, so template or credential changes since scheduling fail the job.
// A claimed job has no schedule left, so every error past the claim fails the job rather
// than leaving it queued.
func (s *DispatchService) DispatchQueuedJob(ctx context.Context, jobID string) error {
	job, err := s.Jobs.GetByID(ctx, s.DB, jobID)
	if err != nil {
		if !errors.Is(err, coredomain.ErrNotFound) {
			s.markJobFailed(ctx, jobID, err.Error())
		}
		return err
	}
	if job.Status != coredomain.JobQueued {
		s.logger.WarnContext(ctx, "Scheduled job is no longer queued", "job_id", jobID, "status", job.Status)
		return nil
	}
	msg, err := s.Messages.GetByID(ctx, s.DB, job.MessageID)
	if err != nil {
		return s.failQueued(ctx, job, job.Metadata.RecipientIDs, err)
	}
	rows, err := s.Recipients.ListByJob(ctx, s.DB, job.ID)
	if err != nil {
		return s.failQueued(ctx, job, job.Metadata.RecipientIDs, err)
	}
	rows = pendingRows(rows)
	if len(rows) == 0 {
		return s.failDispatch(ctx, msg.ID, job, nil, coredomain.ErrNoValidRecipients.Error())
	}

	p, err := s.plan(ctx, job.Metadata.TemplateID, msg.BranchID, job.Metadata.TemplateParameters, job.Metadata.TemplateDataMappings, asRecipients(rows))
	if err != nil {
		s.logger.WarnContext(ctx, "Scheduled job failed its preconditions", "error", err, "job_id", job.ID)
		return s.failQueued(ctx, job, recipientIDs(rows), err)
	}

	if msg.Status == coredomain.MessageScheduled {
		if err := s.Messages.UpdateStatus(ctx, s.DB, msg.ID, coredomain.MessageSending); err != nil {
			return s.failQueued(ctx, job, recipientIDs(rows), err)
		}
		msg.Status = coredomain.MessageSending
	}
	return s.dispatch(ctx, authz.System.UserID, "scheduled", msg.ID, job, buildPayload(msg, job, p, rows))
}

// failQueued fails a claimed job with cause and returns cause. When the full rollup cannot be
// written the job row alone is failed, which still releases the message for a retry.
func (s *DispatchService) failQueued(ctx context.Context, job *coredomain.MessageJob, ids []string, cause error) error {
	reason := cause.Error()
	ctx = context.WithoutCancel(ctx)
	if err := s.failDispatch(ctx, job.MessageID, job, ids, reason); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record scheduled job failure", "error", err, "job_id", job.ID)
		s.markJobFailed(ctx, job.ID, reason)
	}
	s.Activity.Record(ctx, coredomain.EntityMessage, job.MessageID, coredomain.ActionDispatchFailed, authz.System.UserID, map[string]any{
		"jobId": job.ID, "error": reason,
	})
	return cause
}

func (s *DispatchService) markJobFailed(ctx context.Context, jobID, reason string) {
	if err := s.Jobs.MarkFailed(context.WithoutCancel(ctx), s.DB, jobID, reason, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark scheduled job failed", "error", err, "job_id", jobID)
	}
}

func pendingRows(rows []*coredomain.MessageRecipient) []*coredomain.MessageRecipient {
	out := rows[:0:0]
	for _, r := range rows {
		if r.PhoneValid && r.Status == coredomain.RecipientPending {
			out = append(out, r)
		}
	}
	return out
}

func asRecipients(rows []*coredomain.MessageRecipient) []coredomain.Recipient {
	out := make([]coredomain.Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.AsRecipient())
	}
	return out
}
