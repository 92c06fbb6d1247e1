package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/messaging_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

// TemplateInput is the editable content of a template.
type TemplateInput struct {
	Name      string
	Category  coredomain.TemplateCategory
	Language  string
	Body      string
	Variables []string
	Header    *coredomain.TemplateHeader
	Footer    string
	Buttons   []coredomain.TemplateButton
	MediaURLs []string
}

func (in TemplateInput) applyTo(t *coredomain.Template) {
	t.Name = in.Name
	t.Category = in.Category
	t.Language = in.Language
	if t.Language == "" {
		t.Language = "en"
	}
	t.Body = in.Body
	t.Variables = in.Variables
	if len(t.Variables) == 0 {
		t.Variables = coredomain.Placeholders(in.Body)
	}
	t.Header = in.Header
	t.Footer = in.Footer
	t.Buttons = in.Buttons
	t.MediaURLs = in.MediaURLs
}

// SyncResult summarizes a template sync.
type SyncResult struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// TemplateService manages local templates and their registration with the provider.
type TemplateService struct {
	db          database.Querier
	templates   coredomain.TemplateRepository
	credentials coredomain.CredentialsRepository
	provider    domain.TemplateProvider
	activity    *ActivityRecorder
	checker     authz.Checker
	logger      *slog.Logger
	now         func() time.Time
}

func NewTemplateService(
	db database.Querier,
	templates coredomain.TemplateRepository,
	credentials coredomain.CredentialsRepository,
	provider domain.TemplateProvider,
	activity *ActivityRecorder,
	checker authz.Checker,
	logger *slog.Logger,
) *TemplateService {
	return &TemplateService{
		db:          db,
		templates:   templates,
		credentials: credentials,
		provider:    provider,
		activity:    activity,
		checker:     checker,
		logger:      logger.With("service", "template_store"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func authorize(ctx context.Context, checker authz.Checker, actor authz.Actor, perm authz.Permission, branchID string) error {
	if !checker.Can(ctx, actor, perm, branchID) {
		return fmt.Errorf("%w: %s required", coredomain.ErrForbidden, perm)
	}
	return nil
}

func (s *TemplateService) CreateTemplate(ctx context.Context, actor authz.Actor, in TemplateInput) (*coredomain.Template, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermTemplatesManage, ""); err != nil {
		return nil, err
	}
	now := s.now()
	tpl := &coredomain.Template{ID: uuid.NewString(), CreatedBy: actor.UserID, CreatedAt: now, UpdatedAt: now}
	in.applyTo(tpl)
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if err := s.templates.Create(ctx, s.db, tpl); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, coredomain.EntityTemplate, tpl.ID, coredomain.ActionTemplateCreated, actor.UserID, map[string]any{"name": tpl.Name})
	s.logger.InfoContext(ctx, "Template created", "template_id", tpl.ID, "name", tpl.Name)
	return tpl, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, actor authz.Actor, id string) (*coredomain.Template, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermMessagesRead, ""); err != nil {
		return nil, err
	}
	return s.templates.GetByID(ctx, s.db, id)
}

func (s *TemplateService) ListTemplates(ctx context.Context, actor authz.Actor, filter coredomain.TemplateFilter) ([]*coredomain.Template, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermMessagesRead, ""); err != nil {
		return nil, err
	}
	return s.templates.List(ctx, s.db, filter)
}

// UpdateTemplate edits a template. An approved template is locked unless resetApproval is set.
// Changing the content or name of a registered template drops its registration.
func (s *TemplateService) UpdateTemplate(ctx context.Context, actor authz.Actor, id string, in TemplateInput, resetApproval bool) (*coredomain.Template, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermTemplatesManage, ""); err != nil {
		return nil, err
	}
	current, err := s.templates.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if current.ApprovalStatus == coredomain.ApprovalApproved && !resetApproval {
		return nil, fmt.Errorf("%w: template %q", coredomain.ErrTemplateLocked, current.Name)
	}

	updated := *current
	in.applyTo(&updated)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	registered := current.ApprovalStatus != coredomain.ApprovalNone || current.ProviderName != ""
	reset := resetApproval || (registered && (current.Name != updated.Name || !current.SameContent(&updated)))
	if reset {
		updated.ResetApproval()
	}
	updated.UpdatedAt = s.now()

	if err := s.templates.Update(ctx, s.db, &updated); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, coredomain.EntityTemplate, id, coredomain.ActionTemplateUpdated, actor.UserID, map[string]any{"approvalReset": reset})
	return &updated, nil
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, actor authz.Actor, id string) error {
	if err := authorize(ctx, s.checker, actor, authz.PermTemplatesManage, ""); err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, s.db, id); err != nil {
		return err
	}
	s.activity.Record(ctx, coredomain.EntityTemplate, id, coredomain.ActionTemplateDeleted, actor.UserID, nil)
	return nil
}

// ResetApproval unlocks an approved template for editing.
func (s *TemplateService) ResetApproval(ctx context.Context, actor authz.Actor, id string) (*coredomain.Template, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermTemplatesManage, ""); err != nil {
		return nil, err
	}
	tpl, err := s.templates.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	previous := tpl.ApprovalStatus
	tpl.ResetApproval()
	tpl.UpdatedAt = s.now()
	if err := s.templates.Update(ctx, s.db, tpl); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, coredomain.EntityTemplate, id, coredomain.ActionApprovalReset, actor.UserID, map[string]any{"previousStatus": string(previous)})
	return tpl, nil
}

func (s *TemplateService) branchCredentials(ctx context.Context, branchID string) (*coredomain.ProviderCredentials, error) {
	creds, err := s.credentials.GetByBranch(ctx, s.db, branchID)
	if err != nil {
		if errors.Is(err, coredomain.ErrNotFound) {
			return nil, fmt.Errorf("%w: branch %s has no WhatsApp settings", coredomain.ErrMissingCredentials, branchID)
		}
		return nil, err
	}
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: branch %s", coredomain.ErrMissingCredentials, branchID)
	}
	return creds, nil
}

// SubmitForApproval registers the template with the provider using branchID's credentials and
// returns the provider template id. A failed submission leaves the stored approval state untouched.
func (s *TemplateService) SubmitForApproval(ctx context.Context, actor authz.Actor, id, branchID string) (string, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermTemplatesManage, branchID); err != nil {
		return "", err
	}
	tpl, err := s.templates.GetByID(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	if tpl.ApprovalStatus == coredomain.ApprovalApproved {
		return "", fmt.Errorf("%w: template %q is already approved", coredomain.ErrTemplateLocked, tpl.Name)
	}
	if err := tpl.Validate(); err != nil {
		return "", err
	}
	submission, err := CompileTemplate(tpl)
	if err != nil {
		return "", err
	}
	creds, err := s.branchCredentials(ctx, branchID)
	if err != nil {
		return "", err
	}

	result, err := s.provider.SubmitTemplate(ctx, *creds, submission)
	if err != nil {
		templateProviderCallsCounter.WithLabelValues("submit", "error").Inc()
		s.logger.WarnContext(ctx, "Template submission rejected", "error", err, "template_id", id, "provider_name", submission.Name)
		s.activity.Record(ctx, coredomain.EntityTemplate, id, coredomain.ActionTemplateRejected, actor.UserID,
			map[string]any{"providerName": submission.Name, "error": err.Error()})
		return "", fmt.Errorf("%w: %v", coredomain.ErrProviderRequest, err)
	}
	templateProviderCallsCounter.WithLabelValues("submit", "ok").Inc()

	tpl.ProviderName = submission.Name
	tpl.ProviderLanguage = submission.Language
	tpl.ProviderTemplateID = result.ID
	tpl.ApprovalStatus = coredomain.ApprovalPending
	if result.Status != "" {
		tpl.ApprovalStatus = ApprovalFromProvider(result.Status)
	}
	tpl.UpdatedAt = s.now()
	if err := s.templates.Update(ctx, s.db, tpl); err != nil {
		return "", err
	}
	s.activity.Record(ctx, coredomain.EntityTemplate, id, coredomain.ActionTemplateSubmitted, actor.UserID,
		map[string]any{"providerName": submission.Name, "providerTemplateId": result.ID, "status": string(tpl.ApprovalStatus)})
	s.logger.InfoContext(ctx, "Template submitted", "template_id", id, "provider_template_id", result.ID, "status", tpl.ApprovalStatus)
	return result.ID, nil
}

// SyncTemplates pulls the provider's template list. Existing rows keyed by provider name and
// language take the provider's content and status; usable templates without a local row are
// created and attributed to originBranchID when given.
func (s *TemplateService) SyncTemplates(ctx context.Context, actor authz.Actor, branchID, originBranchID string) (*SyncResult, error) {
	if err := authorize(ctx, s.checker, actor, authz.PermTemplatesManage, branchID); err != nil {
		return nil, err
	}
	creds, err := s.branchCredentials(ctx, branchID)
	if err != nil {
		return nil, err
	}
	remote, err := s.provider.ListTemplates(ctx, *creds)
	if err != nil {
		templateProviderCallsCounter.WithLabelValues("sync", "error").Inc()
		return nil, fmt.Errorf("%w: %v", coredomain.ErrProviderRequest, err)
	}
	templateProviderCallsCounter.WithLabelValues("sync", "ok").Inc()

	res := &SyncResult{Fetched: len(remote)}
	for _, p := range remote {
		existing, err := s.templates.FindByProviderKey(ctx, s.db, p.Name, p.Language)
		switch {
		case err == nil:
			ApplyProviderTemplate(existing, p)
			existing.UpdatedAt = s.now()
			if err := s.templates.Update(ctx, s.db, existing); err != nil {
				return res, err
			}
			res.Updated++
		case errors.Is(err, coredomain.ErrNotFound):
			if !Usable(p) {
				res.Skipped++
				continue
			}
			created, err := s.importTemplate(ctx, actor, p, originBranchID)
			if err != nil {
				return res, err
			}
			if created {
				res.Created++
			} else {
				res.Skipped++
			}
		default:
			return res, err
		}
	}

	s.activity.Record(ctx, coredomain.EntityTemplate, branchID, coredomain.ActionTemplatesSynced, actor.UserID, map[string]any{
		"fetched": res.Fetched, "created": res.Created, "updated": res.Updated, "skipped": res.Skipped,
	})
	s.logger.InfoContext(ctx, "Templates synced", "branch_id", branchID, "fetched", res.Fetched, "created", res.Created, "updated", res.Updated)
	return res, nil
}

func (s *TemplateService) importTemplate(ctx context.Context, actor authz.Actor, p domain.ProviderTemplate, originBranchID string) (bool, error) {
	now := s.now()
	tpl := &coredomain.Template{ID: uuid.NewString(), Name: p.Name, CreatedBy: actor.UserID, CreatedAt: now, UpdatedAt: now}
	if originBranchID != "" {
		tpl.OriginBranchID = &originBranchID
	}
	ApplyProviderTemplate(tpl, p)

	err := s.templates.Create(ctx, s.db, tpl)
	if errors.Is(err, coredomain.ErrDuplicateTemplateName) {
		s.logger.WarnContext(ctx, "Provider template name collides with a local template", "name", p.Name, "language", p.Language)
		return false, nil
	}
	return err == nil, err
}
