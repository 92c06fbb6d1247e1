package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

const defaultAPIVersion = "v19.0"

// SettingsService manages the per-branch WhatsApp credentials that sends and template
// submissions authenticate with.
type SettingsService struct {
	db          database.Querier
	credentials coredomain.CredentialsRepository
	activity    *ActivityRecorder
	checker     authz.Checker
	logger      *slog.Logger
}

func NewSettingsService(db database.Querier, credentials coredomain.CredentialsRepository, activity *ActivityRecorder, checker authz.Checker, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		db:          db,
		credentials: credentials,
		activity:    activity,
		checker:     checker,
		logger:      logger.With("service", "whatsapp_settings"),
	}
}

// SetCredentials stores the credentials of a branch. Partial credentials are rejected,
// since a send with them would fail at the worker.
func (s *SettingsService) SetCredentials(ctx context.Context, actor authz.Actor, c coredomain.ProviderCredentials) error {
	c.BranchID = strings.TrimSpace(c.BranchID)
	if c.BranchID == "" {
		return fmt.Errorf("%w: branch id is required", coredomain.ErrMissingCredentials)
	}
	if err := authorize(ctx, s.checker, actor, authz.PermSettingsManage, c.BranchID); err != nil {
		return err
	}
	if !c.Complete() {
		return fmt.Errorf("%w: phone number id, business account id and access token are required", coredomain.ErrMissingCredentials)
	}
	if c.APIVersion == "" {
		c.APIVersion = defaultAPIVersion
	}
	if err := s.credentials.Upsert(ctx, s.db, &c); err != nil {
		s.logger.ErrorContext(ctx, "Failed to store WhatsApp settings", "error", err, "branch_id", c.BranchID)
		return err
	}
	s.logger.InfoContext(ctx, "WhatsApp settings updated", "branch_id", c.BranchID, "phone_number_id", c.PhoneNumberID)
	s.activity.Record(ctx, coredomain.EntityBranch, c.BranchID, coredomain.ActionSettingsUpdated, actor.UserID, map[string]any{
		"phoneNumberId": c.PhoneNumberID, "businessAccountId": c.BusinessAccountID, "apiVersion": c.APIVersion,
	})
	return nil
}
