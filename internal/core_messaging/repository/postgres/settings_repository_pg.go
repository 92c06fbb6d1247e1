package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

// PgCredentialsRepository stores per-branch WhatsApp credentials.
type PgCredentialsRepository struct {
	logger *slog.Logger
}

func NewPgCredentialsRepository(logger *slog.Logger) *PgCredentialsRepository {
	return &PgCredentialsRepository{logger: logger.With("repository", "whatsapp_settings")}
}

func (r *PgCredentialsRepository) GetByBranch(ctx context.Context, q database.Querier, branchID string) (*domain.ProviderCredentials, error) {
	var c domain.ProviderCredentials
	err := q.QueryRow(ctx, `SELECT branch_id, phone_number_id, business_account_id, access_token, api_version, updated_at
		FROM whatsapp_settings WHERE branch_id = $1`, branchID).
		Scan(&c.BranchID, &c.PhoneNumberID, &c.BusinessAccountID, &c.AccessToken, &c.APIVersion, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get whatsapp settings for branch %s: %w", branchID, notFound(err))
	}
	return &c, nil
}

func (r *PgCredentialsRepository) Upsert(ctx context.Context, q database.Querier, c *domain.ProviderCredentials) error {
	_, err := q.Exec(ctx, `INSERT INTO whatsapp_settings (branch_id, phone_number_id, business_account_id, access_token, api_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (branch_id) DO UPDATE
		SET phone_number_id = EXCLUDED.phone_number_id, business_account_id = EXCLUDED.business_account_id,
			access_token = EXCLUDED.access_token, api_version = EXCLUDED.api_version, updated_at = NOW()`,
		c.BranchID, c.PhoneNumberID, c.BusinessAccountID, c.AccessToken, c.APIVersion)
	if err != nil {
		return fmt.Errorf("upsert whatsapp settings: %w", err)
	}
	return nil
}
