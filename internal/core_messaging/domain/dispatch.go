package domain

import "time"

// ProviderCredentials are the per-branch WhatsApp Business API credentials.
type ProviderCredentials struct {
	BranchID          string    `json:"branchId"`
	PhoneNumberID     string    `json:"phoneNumberId"`
	BusinessAccountID string    `json:"businessAccountId"`
	AccessToken       string    `json:"accessToken"`
	APIVersion        string    `json:"apiVersion"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Complete reports whether the worker can authenticate with these credentials.
func (c *ProviderCredentials) Complete() bool {
	return c != nil && c.PhoneNumberID != "" && c.BusinessAccountID != "" && c.AccessToken != ""
}

// TemplateData is the template identity handed to the worker.
type TemplateData struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	ProviderName string           `json:"providerName"`
	Language     string           `json:"language"`
	Category     TemplateCategory `json:"category"`
	Variables    []string         `json:"variables"`
	Header       *TemplateHeader  `json:"header,omitempty"`
}

// DispatchRecipient is one addressee in the worker payload.
type DispatchRecipient struct {
	MessageRecipientID string            `json:"messageRecipientId"`
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Phone              string            `json:"phone"`
	Type               RecipientType     `json:"type"`
	Additional         map[string]any    `json:"additional,omitempty"`
	Parameters         map[string]string `json:"parameters"`
}

// DispatchPayload is the handoff contract with the delivery worker.
type DispatchPayload struct {
	JobID                string              `json:"jobId"`
	MessageID            string              `json:"messageId"`
	BranchID             string              `json:"branchId"`
	TemplateData         TemplateData        `json:"templateData"`
	Recipients           []DispatchRecipient `json:"recipients"`
	TemplateParameters   map[string]string   `json:"templateParameters,omitempty"`
	TemplateDataMappings []DataMapping       `json:"templateDataMappings,omitempty"`
	ProviderCredentials  ProviderCredentials `json:"providerCredentials"`
	DryRun               bool                `json:"dryRun"`
	IsRetry              bool                `json:"isRetry"`
	Priority             int                 `json:"priority"`
}
