package domain

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

type TemplateCategory string

const (
	CategoryAuthentication TemplateCategory = "AUTHENTICATION"
	CategoryMarketing      TemplateCategory = "MARKETING"
	CategoryUtility        TemplateCategory = "UTILITY"
)

// ApprovalStatus is the provider's verdict on a submitted template. Empty means never submitted.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

type HeaderFormat string

const (
	HeaderText     HeaderFormat = "TEXT"
	HeaderImage    HeaderFormat = "IMAGE"
	HeaderVideo    HeaderFormat = "VIDEO"
	HeaderDocument HeaderFormat = "DOCUMENT"
)

type ButtonType string

const (
	ButtonQuickReply   ButtonType = "QUICK_REPLY"
	ButtonURL          ButtonType = "URL"
	ButtonPhoneNumber  ButtonType = "PHONE_NUMBER"
	ButtonCallToAction ButtonType = "CALL_TO_ACTION"
)

const (
	MaxFooterLength = 60
	MaxButtons      = 3
)

type TemplateHeader struct {
	Format   HeaderFormat `json:"format"`
	Text     string       `json:"text,omitempty"`
	MediaURL string       `json:"mediaUrl,omitempty"`
}

type TemplateButton struct {
	Type        ButtonType `json:"type"`
	Text        string     `json:"text"`
	URL         string     `json:"url,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
}

// Template is a reusable message skeleton with {{name}} placeholders.
type Template struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Category           TemplateCategory `json:"category"`
	Language           string           `json:"language"`
	Body               string           `json:"body"`
	Variables          []string         `json:"variables"`
	Header             *TemplateHeader  `json:"header,omitempty"`
	Footer             string           `json:"footer,omitempty"`
	Buttons            []TemplateButton `json:"buttons,omitempty"`
	MediaURLs          []string         `json:"mediaUrls,omitempty"`
	ProviderName       string           `json:"providerName,omitempty"`
	ProviderLanguage   string           `json:"providerLanguage,omitempty"`
	ProviderTemplateID string           `json:"providerTemplateId,omitempty"`
	ApprovalStatus     ApprovalStatus   `json:"approvalStatus"`
	OriginBranchID     *string          `json:"originBranchId,omitempty"`
	CreatedBy          string           `json:"createdBy,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Placeholders returns the distinct {{name}} placeholders of text in order of first appearance.
func Placeholders(text string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// ReplacePlaceholders rewrites every {{name}} through fn.
func ReplacePlaceholders(text string, fn func(name string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		return fn(placeholderPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks the structural rules of a template.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if t.Body == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidTemplate)
	}
	switch t.Category {
	case CategoryAuthentication, CategoryMarketing, CategoryUtility:
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTemplate, t.Category)
	}
	if len([]rune(t.Footer)) > MaxFooterLength {
		return fmt.Errorf("%w: footer exceeds %d characters", ErrInvalidTemplate, MaxFooterLength)
	}
	if len(t.Buttons) > MaxButtons {
		return fmt.Errorf("%w: at most %d buttons are allowed", ErrInvalidTemplate, MaxButtons)
	}
	if t.Header != nil {
		switch t.Header.Format {
		case HeaderText:
			if t.Header.Text == "" {
				return fmt.Errorf("%w: text header requires text", ErrInvalidTemplate)
			}
		case HeaderImage, HeaderVideo, HeaderDocument:
		default:
			return fmt.Errorf("%w: unknown header format %q", ErrInvalidTemplate, t.Header.Format)
		}
	}
	for _, b := range t.Buttons {
		if b.Text == "" {
			return fmt.Errorf("%w: button text is required", ErrInvalidTemplate)
		}
		if b.Type == ButtonURL && b.URL == "" {
			return fmt.Errorf("%w: url button requires a url", ErrInvalidTemplate)
		}
		if b.Type == ButtonPhoneNumber && b.PhoneNumber == "" {
			return fmt.Errorf("%w: phone button requires a phone number", ErrInvalidTemplate)
		}
	}
	return nil
}

// CheckSendable enforces that only synced, approved templates start a send.
func (t *Template) CheckSendable() error {
	if t.ProviderName == "" {
		return fmt.Errorf("%w: template %q has no provider name, sync or submit it first", ErrTemplateNotSynced, t.Name)
	}
	if t.ApprovalStatus != ApprovalApproved {
		status := string(t.ApprovalStatus)
		if status == "" {
			status = "not submitted"
		}
		return fmt.Errorf("%w: template %q approval status is %s", ErrTemplateNotApproved, t.Name, status)
	}
	return nil
}

// ResetApproval drops the provider registration so the template can be edited and submitted again.
func (t *Template) ResetApproval() {
	t.ApprovalStatus = ApprovalNone
	t.ProviderName = ""
	t.ProviderLanguage = ""
	t.ProviderTemplateID = ""
}

// SameContent reports whether two templates would render identically at the provider.
func (t *Template) SameContent(o *Template) bool {
	if t.Body != o.Body || t.Footer != o.Footer || t.Category != o.Category || t.Language != o.Language {
		return false
	}
	if !slices.Equal(t.Variables, o.Variables) || !slices.Equal(t.Buttons, o.Buttons) || !slices.Equal(t.MediaURLs, o.MediaURLs) {
		return false
	}
	switch {
	case t.Header == nil && o.Header == nil:
		return true
	case t.Header == nil || o.Header == nil:
		return false
	default:
		return *t.Header == *o.Header
	}
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Category       TemplateCategory
	ApprovalStatus *ApprovalStatus
	Search         string
	Limit          int
	Offset         int
}
