package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateTemplateName = errors.New("template name already exists")
	ErrActiveJobExists       = errors.New("an active job already exists for this message")
	ErrRecipientsChanged     = errors.New("recipients changed status concurrently")
	ErrTemplateNotSynced     = errors.New("template is not synced with the provider")
	ErrTemplateNotApproved   = errors.New("template is not approved by the provider")
	ErrTemplateLocked        = errors.New("approved template cannot be edited without resetting approval")
	ErrInvalidTemplate       = errors.New("invalid template")
	ErrNoValidRecipients     = errors.New("no recipients with a valid phone number")
	ErrMissingCredentials    = errors.New("provider credentials are missing or incomplete")
	ErrInvalidParameters     = errors.New("template parameters are invalid")
	ErrInvalidTarget         = errors.New("invalid recipient target")
	ErrNotImplemented        = errors.New("not implemented")
	ErrForbidden             = errors.New("forbidden")
	ErrDispatchTrigger       = errors.New("failed to hand the job to the delivery worker")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrProviderRequest       = errors.New("messaging provider request failed")
)

// ErrorKind is the machine-readable class of an error surfaced to callers.
type ErrorKind string

const (
	KindPrecondition   ErrorKind = "precondition"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindForbidden      ErrorKind = "forbidden"
	KindInvalid        ErrorKind = "invalid"
	KindDispatch       ErrorKind = "dispatch"
	KindProvider       ErrorKind = "provider"
	KindNotImplemented ErrorKind = "not_implemented"
	KindInternal       ErrorKind = "internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotFound, KindNotFound},
	{ErrDuplicateTemplateName, KindConflict},
	{ErrActiveJobExists, KindConflict},
	{ErrRecipientsChanged, KindConflict},
	{ErrTemplateLocked, KindConflict},
	{ErrTemplateNotSynced, KindPrecondition},
	{ErrTemplateNotApproved, KindPrecondition},
	{ErrNoValidRecipients, KindPrecondition},
	{ErrMissingCredentials, KindPrecondition},
	{ErrInvalidParameters, KindPrecondition},
	{ErrInvalidTemplate, KindInvalid},
	{ErrInvalidTarget, KindInvalid},
	{ErrInvalidStatus, KindInvalid},
	{ErrNotImplemented, KindNotImplemented},
	{ErrForbidden, KindForbidden},
	{ErrDispatchTrigger, KindDispatch},
	{ErrProviderRequest, KindProvider},
}

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindBySentinel {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ParameterError reports template variables that could not be bound.
type ParameterError struct {
	Missing   []string
	Unknown   []string
	Suggested map[string]string
}

func (e *ParameterError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing values for "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown parameters "+strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidParameters, strings.Join(parts, "; "))
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameters
}
