package http

import (
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	pbdomain "github.com/campusline/comms_services/internal/phonebook_service/domain"
)

// GenericErrorResponse for API errors
type GenericErrorResponse struct {
	Error               string            `json:"error"`
	Kind                string            `json:"kind,omitempty"`
	Details             string            `json:"details,omitempty"`
	MissingVariables    []string          `json:"missingVariables,omitempty"`
	UnknownParameters   []string          `json:"unknownParameters,omitempty"`
	SuggestedParameters map[string]string `json:"suggestedParameters,omitempty"`
}

// ResolveRecipientsResponse DTO for POST /recipients/resolve
type ResolveRecipientsResponse struct {
	Recipients []coredomain.Recipient `json:"recipients"`
	Count      int                    `json:"count"`
}

// TemplateRequest DTO for creating and updating templates.
type TemplateRequest struct {
	Name          string                      `json:"name" validate:"required,max=512"`
	Category      coredomain.TemplateCategory `json:"category" validate:"required,oneof=AUTHENTICATION MARKETING UTILITY"`
	Language      string                      `json:"language" validate:"omitempty,max=16"`
	Body          string                      `json:"body" validate:"required,max=1024"`
	Variables     []string                    `json:"variables,omitempty"`
	Header        *coredomain.TemplateHeader  `json:"header,omitempty"`
	Footer        string                      `json:"footer,omitempty" validate:"max=60"`
	Buttons       []coredomain.TemplateButton `json:"buttons,omitempty" validate:"max=3"`
	MediaURLs     []string                    `json:"mediaUrls,omitempty" validate:"dive,url"`
	ResetApproval bool                        `json:"resetApproval,omitempty"`
}

// BranchRequest DTO for provider operations that run with a branch's credentials.
type BranchRequest struct {
	BranchID       string `json:"branchId" validate:"required"`
	OriginBranchID string `json:"originBranchId,omitempty"`
}

// SubmitTemplateResponse DTO for POST /templates/{templateID}/submit
type SubmitTemplateResponse struct {
	ProviderName string `json:"providerName"`
}

// SendMessageRequest DTO for POST /messages/send
type SendMessageRequest struct {
	Title                string                   `json:"title" validate:"required,max=255"`
	TemplateID           string                   `json:"templateId,omitempty"`
	CustomMessage        string                   `json:"customMessage,omitempty"`
	RecipientType        string                   `json:"recipientType,omitempty"`
	Recipients           []coredomain.Recipient   `json:"recipients,omitempty"`
	ContactType          []pbdomain.ContactType   `json:"contactType,omitempty"`
	Target               *pbdomain.TargetSpec     `json:"target,omitempty"`
	TemplateParameters   map[string]string        `json:"templateParameters,omitempty"`
	TemplateDataMappings []coredomain.DataMapping `json:"templateDataMappings,omitempty" validate:"dive"`
	ScheduledAt          *time.Time               `json:"scheduledAt,omitempty"`
	BranchID             string                   `json:"branchId" validate:"required"`
	DryRun               bool                     `json:"dryRun"`
}

// RetryRequest DTO for POST /messages/{messageID}/retry. An empty list retries every failed recipient.
type RetryRequest struct {
	RecipientIDs []string `json:"recipientIds,omitempty"`
}

// MessageListResponse DTO for GET /messages
type MessageListResponse struct {
	Messages []*coredomain.Message `json:"messages"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// ActivityListResponse DTO for GET /messages/{messageID}/activity
type ActivityListResponse struct {
	Entries []*coredomain.ActivityLog `json:"entries"`
	Count   int                       `json:"count"`
}

// RecipientListResponse DTO for GET /messages/{messageID}/recipients
type RecipientListResponse struct {
	Recipients []*coredomain.MessageRecipient `json:"recipients"`
	Count      int                            `json:"count"`
}
