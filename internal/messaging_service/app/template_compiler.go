package app

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/messaging_service/domain"
)

var (
	nonNameChars     = regexp.MustCompile(`[^a-z0-9_]`)
	repeatUnderscore = regexp.MustCompile(`_+`)
)

// ProviderName derives the provider-safe template name: lowercase, whitespace turned into
// underscores, anything outside [a-z0-9_] dropped, underscore runs collapsed and trimmed.
func ProviderName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Join(strings.Fields(n), "_")
	n = nonNameChars.ReplaceAllString(n, "")
	n = repeatUnderscore.ReplaceAllString(n, "_")
	return strings.Trim(n, "_")
}

// Positional rewrites {{name}} placeholders into {{1}}, {{2}}, ... following the order of vars.
// A placeholder that is not declared is an error.
func Positional(text string, vars []string) (string, error) {
	var undeclared []string
	out := coredomain.ReplacePlaceholders(text, func(name string) string {
		idx := slices.Index(vars, name)
		if idx < 0 {
			if !slices.Contains(undeclared, name) {
				undeclared = append(undeclared, name)
			}
			return "{{" + name + "}}"
		}
		return "{{" + strconv.Itoa(idx+1) + "}}"
	})
	if len(undeclared) > 0 {
		return "", fmt.Errorf("%w: placeholders %s are not declared variables", coredomain.ErrInvalidTemplate, strings.Join(undeclared, ", "))
	}
	return out, nil
}

// CompileTemplate builds the provider registration of tpl.
func CompileTemplate(tpl *coredomain.Template) (domain.TemplateSubmission, error) {
	name := ProviderName(tpl.Name)
	if name == "" {
		return domain.TemplateSubmission{}, fmt.Errorf("%w: name %q has no provider-safe characters", coredomain.ErrInvalidTemplate, tpl.Name)
	}
	vars := TemplateVariables(tpl)

	var components []domain.Component
	if h := tpl.Header; h != nil {
		c := domain.Component{Type: domain.ComponentHeader, Format: string(h.Format)}
		if h.Format == coredomain.HeaderText {
			headerVars := coredomain.Placeholders(h.Text)
			text, err := Positional(h.Text, headerVars)
			if err != nil {
				return domain.TemplateSubmission{}, err
			}
			c.Text = text
			if len(headerVars) > 0 {
				c.Example = &domain.ComponentExample{HeaderText: headerVars}
			}
		} else if h.MediaURL != "" {
			c.Example = &domain.ComponentExample{HeaderHandle: []string{h.MediaURL}}
		}
		components = append(components, c)
	}

	body, err := Positional(tpl.Body, vars)
	if err != nil {
		return domain.TemplateSubmission{}, err
	}
	bodyComponent := domain.Component{Type: domain.ComponentBody, Text: body}
	if len(vars) > 0 {
		bodyComponent.Example = &domain.ComponentExample{BodyText: [][]string{slices.Clone(vars)}}
	}
	components = append(components, bodyComponent)

	if tpl.Footer != "" {
		components = append(components, domain.Component{Type: domain.ComponentFooter, Text: tpl.Footer})
	}

	if len(tpl.Buttons) > 0 {
		buttons := make([]domain.ComponentButton, 0, len(tpl.Buttons))
		for _, b := range tpl.Buttons {
			buttons = append(buttons, compileButton(b))
		}
		components = append(components, domain.Component{Type: domain.ComponentButtons, Buttons: buttons})
	}

	return domain.TemplateSubmission{
		Name:       name,
		Language:   tpl.Language,
		Category:   string(tpl.Category),
		Components: components,
	}, nil
}

func compileButton(b coredomain.TemplateButton) domain.ComponentButton {
	switch b.Type {
	case coredomain.ButtonURL:
		return domain.ComponentButton{Type: "URL", Text: b.Text, URL: b.URL}
	case coredomain.ButtonPhoneNumber:
		return domain.ComponentButton{Type: "PHONE_NUMBER", Text: b.Text, PhoneNumber: b.PhoneNumber}
	case coredomain.ButtonCallToAction:
		// call-to-action buttons carry either a url or a phone number
		if b.PhoneNumber != "" {
			return domain.ComponentButton{Type: "PHONE_NUMBER", Text: b.Text, PhoneNumber: b.PhoneNumber}
		}
		return domain.ComponentButton{Type: "URL", Text: b.Text, URL: b.URL}
	default:
		return domain.ComponentButton{Type: "QUICK_REPLY", Text: b.Text}
	}
}

// ApprovalFromProvider maps a provider status onto the local approval status.
// Templates the provider lists without a status are legacy active templates and count as approved.
func ApprovalFromProvider(status string) coredomain.ApprovalStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "", "APPROVED", "ACTIVE":
		return coredomain.ApprovalApproved
	case "REJECTED", "DISABLED", "PAUSED":
		return coredomain.ApprovalRejected
	default:
		return coredomain.ApprovalPending
	}
}

// Usable reports whether a provider template may be imported by a sync.
func Usable(p domain.ProviderTemplate) bool {
	s := strings.ToUpper(strings.TrimSpace(p.Status))
	return s == "" || s == "APPROVED"
}

// ApplyProviderTemplate copies the content of a provider template onto tpl.
// Positional placeholders stay positional, so variables become "1", "2", ...
func ApplyProviderTemplate(tpl *coredomain.Template, p domain.ProviderTemplate) {
	tpl.ProviderName = p.Name
	tpl.ProviderLanguage = p.Language
	tpl.ProviderTemplateID = p.ID
	tpl.ApprovalStatus = ApprovalFromProvider(p.Status)
	if tpl.Language == "" {
		tpl.Language = p.Language
	}
	if c := coredomain.TemplateCategory(strings.ToUpper(p.Category)); c != "" {
		tpl.Category = c
	}

	tpl.Header, tpl.Footer, tpl.Buttons = nil, "", nil
	for _, c := range p.Components {
		switch strings.ToUpper(c.Type) {
		case domain.ComponentHeader:
			h := &coredomain.TemplateHeader{Format: coredomain.HeaderFormat(strings.ToUpper(c.Format)), Text: c.Text}
			if h.Format == "" {
				h.Format = coredomain.HeaderText
			}
			if c.Example != nil && len(c.Example.HeaderHandle) > 0 {
				h.MediaURL = c.Example.HeaderHandle[0]
			}
			tpl.Header = h
		case domain.ComponentBody:
			tpl.Body = c.Text
		case domain.ComponentFooter:
			tpl.Footer = c.Text
		case domain.ComponentButtons:
			for _, b := range c.Buttons {
				tpl.Buttons = append(tpl.Buttons, coredomain.TemplateButton{
					Type:        coredomain.ButtonType(strings.ToUpper(b.Type)),
					Text:        b.Text,
					URL:         b.URL,
					PhoneNumber: b.PhoneNumber,
				})
			}
		}
	}
	tpl.Variables = coredomain.Placeholders(tpl.Body)
}
