package domain

import (
	"math"
	"time"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

const (
	PriorityNormal = 0
	PriorityRetry  = 10
)

// DataMapping binds a template variable to a dotted path of the recipient payload.
type DataMapping struct {
	VariableName  string `json:"variableName" validate:"required"`
	DataField     string `json:"dataField" validate:"required"`
	FallbackValue string `json:"fallbackValue"`
}

// JobMetadata is the snapshot a job carries for the worker and for audit.
type JobMetadata struct {
	TemplateID           string            `json:"templateId,omitempty"`
	TemplateName         string            `json:"templateName,omitempty"`
	ProviderName         string            `json:"providerName,omitempty"`
	Language             string            `json:"language,omitempty"`
	TemplateParameters   map[string]string `json:"templateParameters,omitempty"`
	TemplateDataMappings []DataMapping     `json:"templateDataMappings,omitempty"`
	DryRun               bool              `json:"dryRun"`
	IsRetry              bool              `json:"isRetry,omitempty"`
	RetryOf              string            `json:"retryOf,omitempty"`
	RecipientIDs         []string          `json:"recipientIds"`
	Warnings             []string          `json:"warnings,omitempty"`
}

// MessageJob is one unit of asynchronous dispatch for a Message.
// At most one non-terminal job exists per Message.
type MessageJob struct {
	ID                  string      `json:"id"`
	MessageID           string      `json:"messageId"`
	Status              JobStatus   `json:"status"`
	Priority            int         `json:"priority"`
	TotalRecipients     int         `json:"totalRecipients"`
	ProcessedRecipients int         `json:"processedRecipients"`
	SuccessfulSent      int         `json:"successfulSent"`
	Failed              int         `json:"failed"`
	Progress            float64     `json:"progress"`
	Metadata            JobMetadata `json:"metadata"`
	ErrorMessage        *string     `json:"errorMessage,omitempty"`
	ScheduledAt         *time.Time  `json:"scheduledAt,omitempty"`
	StartedAt           *time.Time  `json:"startedAt,omitempty"`
	CompletedAt         *time.Time  `json:"completedAt,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Rollup recomputes the job aggregates from a tally of its scoped recipients and reports
// whether the job changed. Aggregates of a terminal job are final.
func (j *MessageJob) Rollup(t Tally, now time.Time) bool {
	if j.Status.Terminal() {
		return false
	}
	before := *j
	j.rollup(t, now)
	return before.Status != j.Status || before.ProcessedRecipients != j.ProcessedRecipients ||
		before.SuccessfulSent != j.SuccessfulSent || before.Failed != j.Failed ||
		(before.StartedAt == nil) != (j.StartedAt == nil)
}

func (j *MessageJob) rollup(t Tally, now time.Time) {
	j.ProcessedRecipients = t.Processed
	j.SuccessfulSent = t.Successful
	j.Failed = t.Failed
	j.Progress = progress(t.Processed, j.TotalRecipients)
	if t.Processed > 0 && j.StartedAt == nil {
		j.StartedAt = &now
	}

	if j.TotalRecipients > 0 && j.ProcessedRecipients >= j.TotalRecipients {
		if j.SuccessfulSent > 0 {
			j.Status = JobCompleted
		} else {
			j.Status = JobFailed
		}
		if j.CompletedAt == nil {
			j.CompletedAt = &now
		}
		return
	}
	if j.Status == JobQueued && t.Processed > 0 {
		j.Status = JobInProgress
	}
}

// Start marks a queued job as picked up by the worker.
func (j *MessageJob) Start(now time.Time) bool {
	if j.Status != JobQueued {
		return false
	}
	j.Status = JobInProgress
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	return true
}

// Fail marks the job failed with reason.
func (j *MessageJob) Fail(reason string, now time.Time) {
	j.Status = JobFailed
	j.ErrorMessage = &reason
	j.CompletedAt = &now
}

// Abort fails the job and freezes t as its final aggregates.
func (j *MessageJob) Abort(t Tally, reason string, now time.Time) {
	j.ProcessedRecipients = t.Processed
	j.SuccessfulSent = t.Successful
	j.Failed = t.Failed
	j.Progress = progress(t.Processed, j.TotalRecipients)
	j.Fail(reason, now)
}

func progress(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(processed) * 100 / float64(total)
	return math.Round(math.Min(p, 100)*100) / 100
}

// RollupMessage recomputes message counts from its phone-valid recipients and
// derives the status when no active job remains.
func (m *Message) RollupMessage(t Tally, hasActiveJob bool) {
	m.SuccessfulSent = t.Successful
	m.Failed = t.Failed
	if m.SuccessfulSent+m.Failed > m.TotalRecipients {
		m.TotalRecipients = m.SuccessfulSent + m.Failed
	}
	switch m.Status {
	case MessageSending, MessageSent, MessageFailed:
	default:
		return
	}
	if hasActiveJob {
		m.Status = MessageSending
		return
	}
	switch {
	case t.Successful > 0:
		m.Status = MessageSent
	case t.Failed > 0:
		m.Status = MessageFailed
	}
}
