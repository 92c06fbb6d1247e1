package domain

import (
	"time"
)

type MessageStatus string

const (
	MessageDraft     MessageStatus = "draft"
	MessagePending   MessageStatus = "pending"
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
	MessageScheduled MessageStatus = "scheduled"
)

// Message is one logical broadcast. SuccessfulSent + Failed never exceeds TotalRecipients.
type Message struct {
	ID              string        `json:"id"`
	BranchID        string        `json:"branchId"`
	Title           string        `json:"title"`
	TemplateID      *string       `json:"templateId,omitempty"`
	Body            string        `json:"body,omitempty"`
	RecipientType   string        `json:"recipientType"`
	Status          MessageStatus `json:"status"`
	TotalRecipients int           `json:"totalRecipients"`
	SuccessfulSent  int           `json:"successfulSent"`
	Failed          int           `json:"failed"`
	ScheduledAt     *time.Time    `json:"scheduledAt,omitempty"`
	CreatedBy       string        `json:"createdBy"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientRead      RecipientStatus = "read"
	RecipientFailed    RecipientStatus = "failed"
)

// rank orders the forward path pending < sent < delivered < read.
func (s RecipientStatus) rank() int {
	switch s {
	case RecipientSent:
		return 1
	case RecipientDelivered:
		return 2
	case RecipientRead:
		return 3
	default:
		return 0
	}
}

func (s RecipientStatus) Valid() bool {
	switch s {
	case RecipientPending, RecipientSent, RecipientDelivered, RecipientRead, RecipientFailed:
		return true
	}
	return false
}

// Successful reports whether the provider accepted the message for this recipient.
func (s RecipientStatus) Successful() bool {
	return s == RecipientSent || s == RecipientDelivered || s == RecipientRead
}

// MessageRecipient is the per-recipient delivery record of a Message.
type MessageRecipient struct {
	ID                string          `json:"id"`
	MessageID         string          `json:"messageId"`
	JobID             *string         `json:"jobId,omitempty"`
	RecipientType     RecipientType   `json:"recipientType"`
	RecipientID       string          `json:"recipientId"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	PhoneValid        bool            `json:"phoneValid"`
	Status            RecipientStatus `json:"status"`
	Data              map[string]any  `json:"data,omitempty"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time      `json:"readAt,omitempty"`
	FailedAt          *time.Time      `json:"failedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// AsRecipient rebuilds the resolver view of a stored row.
func (mr *MessageRecipient) AsRecipient() Recipient {
	r := Recipient{ID: mr.RecipientID, Type: mr.RecipientType, Name: mr.Name, Phone: mr.Phone}
	if mr.Data != nil {
		r.Additional = StoredContact(mr.Data)
	}
	return r
}

// DeliveryUpdate is one status observation for a MessageRecipient.
type DeliveryUpdate struct {
	Status            RecipientStatus
	At                time.Time
	ProviderMessageID string
	Error             string
}

// Apply folds u into mr following the forward-only lattice
// pending -> sent -> delivered -> read, with failed reachable from pending, sent and delivered.
// Timestamps and the provider id are only filled when empty, so reapplying an update is a no-op.
// It reports whether anything changed.
func (mr *MessageRecipient) Apply(u DeliveryUpdate) bool {
	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	changed := false

	if u.ProviderMessageID != "" && mr.ProviderMessageID == "" {
		mr.ProviderMessageID = u.ProviderMessageID
		changed = true
	}

	switch u.Status {
	case RecipientFailed:
		if mr.Status == RecipientRead {
			return changed
		}
		if mr.Status != RecipientFailed {
			mr.Status = RecipientFailed
			changed = true
		}
		if mr.FailedAt == nil {
			mr.FailedAt = &at
			changed = true
		}
		if u.Error != "" && mr.ErrorMessage != u.Error {
			mr.ErrorMessage = u.Error
			changed = true
		}
	case RecipientSent, RecipientDelivered, RecipientRead:
		if mr.Status == RecipientFailed {
			return changed
		}
		if u.Status.rank() > mr.Status.rank() {
			mr.Status = u.Status
			changed = true
		}
		if fillTimestamp(mr.timestampFor(u.Status), at) {
			changed = true
		}
	}
	return changed
}

func (mr *MessageRecipient) timestampFor(s RecipientStatus) **time.Time {
	switch s {
	case RecipientSent:
		return &mr.SentAt
	case RecipientDelivered:
		return &mr.DeliveredAt
	default:
		return &mr.ReadAt
	}
}

func fillTimestamp(dst **time.Time, at time.Time) bool {
	if *dst != nil {
		return false
	}
	t := at
	*dst = &t
	return true
}

// ResetForRetry puts a failed row back to pending for a new job.
func (mr *MessageRecipient) ResetForRetry(jobID string) {
	mr.Status = RecipientPending
	mr.ErrorMessage = ""
	mr.FailedAt = nil
	mr.JobID = &jobID
}

// StatusCounts is a histogram of recipient statuses.
type StatusCounts map[RecipientStatus]int

// Tally is the aggregate of a set of recipient rows.
type Tally struct {
	Total      int
	Processed  int
	Successful int
	Failed     int
}

// Summarize recomputes aggregates from the full set of statuses.
func Summarize(counts StatusCounts) Tally {
	var t Tally
	for status, n := range counts {
		t.Total += n
		switch {
		case status.Successful():
			t.Successful += n
			t.Processed += n
		case status == RecipientFailed:
			t.Failed += n
			t.Processed += n
		}
	}
	return t
}
