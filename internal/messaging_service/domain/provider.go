package domain

import (
	"context"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// Component types of a provider template.
const (
	ComponentHeader  = "HEADER"
	ComponentBody    = "BODY"
	ComponentFooter  = "FOOTER"
	ComponentButtons = "BUTTONS"
)

// ComponentExample carries sample values for positional variables.
type ComponentExample struct {
	HeaderText   []string   `json:"header_text,omitempty"`
	HeaderHandle []string   `json:"header_handle,omitempty"`
	BodyText     [][]string `json:"body_text,omitempty"`
}

type ComponentButton struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	URL         string   `json:"url,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	Example     []string `json:"example,omitempty"`
}

// Component is one block of a provider template, in the provider's positional form.
type Component struct {
	Type    string            `json:"type"`
	Format  string            `json:"format,omitempty"`
	Text    string            `json:"text,omitempty"`
	Buttons []ComponentButton `json:"buttons,omitempty"`
	Example *ComponentExample `json:"example,omitempty"`
}

// TemplateSubmission is a template compiled for registration with the provider.
type TemplateSubmission struct {
	Name       string      `json:"name"`
	Language   string      `json:"language"`
	Category   string      `json:"category"`
	Components []Component `json:"components"`
}

// SubmissionResult is the provider's answer to a registration.
type SubmissionResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category,omitempty"`
}

// ProviderTemplate is one entry of the provider's template list.
type ProviderTemplate struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Language   string      `json:"language"`
	Status     string      `json:"status"`
	Category   string      `json:"category"`
	Components []Component `json:"components"`
}

// TemplateProvider registers and lists templates with the messaging provider.
type TemplateProvider interface {
	SubmitTemplate(ctx context.Context, creds coredomain.ProviderCredentials, submission TemplateSubmission) (*SubmissionResult, error)
	ListTemplates(ctx context.Context, creds coredomain.ProviderCredentials) ([]ProviderTemplate, error)
}
