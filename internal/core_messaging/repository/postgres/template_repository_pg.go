package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

const templateColumns = `id, name, category, language, body, variables, header, footer, buttons, media_urls,
	provider_name, provider_language, provider_template_id, approval_status, origin_branch_id, created_by,
	created_at, updated_at`

type PgTemplateRepository struct {
	logger *slog.Logger
}

func NewPgTemplateRepository(logger *slog.Logger) *PgTemplateRepository {
	return &PgTemplateRepository{logger: logger.With("repository", "message_template")}
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.Language, &t.Body, &t.Variables, &t.Header, &t.Footer,
		&t.Buttons, &t.MediaURLs, &t.ProviderName, &t.ProviderLanguage, &t.ProviderTemplateID, &t.ApprovalStatus,
		&t.OriginBranchID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// templateArgs normalizes nil slices so NOT NULL array and jsonb columns receive empty values.
func templateArgs(t *domain.Template) (variables []string, buttons []domain.TemplateButton, media []string) {
	variables, buttons, media = t.Variables, t.Buttons, t.MediaURLs
	if variables == nil {
		variables = []string{}
	}
	if buttons == nil {
		buttons = []domain.TemplateButton{}
	}
	if media == nil {
		media = []string{}
	}
	return variables, buttons, media
}

func (r *PgTemplateRepository) Create(ctx context.Context, q database.Querier, t *domain.Template) error {
	variables, buttons, media := templateArgs(t)
	_, err := q.Exec(ctx, `INSERT INTO message_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.Name, string(t.Category), t.Language, t.Body, variables, t.Header, t.Footer, buttons, media,
		t.ProviderName, t.ProviderLanguage, t.ProviderTemplateID, string(t.ApprovalStatus), t.OriginBranchID, t.CreatedBy,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("create template %q: %w", t.Name, domain.ErrDuplicateTemplateName)
		}
		r.logger.ErrorContext(ctx, "Failed to insert template", "error", err, "template_id", t.ID)
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *PgTemplateRepository) GetByID(ctx context.Context, q database.Querier, id string) (*domain.Template, error) {
	t, err := scanTemplate(q.QueryRow(ctx, `SELECT `+templateColumns+` FROM message_templates WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, notFound(err))
	}
	return t, nil
}

func (r *PgTemplateRepository) FindByProviderKey(ctx context.Context, q database.Querier, providerName, providerLanguage string) (*domain.Template, error) {
	t, err := scanTemplate(q.QueryRow(ctx, `SELECT `+templateColumns+` FROM message_templates
		WHERE provider_name = $1 AND provider_language = $2 LIMIT 1`, providerName, providerLanguage))
	if err != nil {
		return nil, fmt.Errorf("find template %s/%s: %w", providerName, providerLanguage, notFound(err))
	}
	return t, nil
}

func (r *PgTemplateRepository) List(ctx context.Context, q database.Querier, filter domain.TemplateFilter) ([]*domain.Template, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ApprovalStatus != nil {
		args = append(args, string(*filter.ApprovalStatus))
		conds = append(conds, fmt.Sprintf("approval_status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR body ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + templateColumns + ` FROM message_templates`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PgTemplateRepository) Update(ctx context.Context, q database.Querier, t *domain.Template) error {
	variables, buttons, media := templateArgs(t)
	tag, err := q.Exec(ctx, `UPDATE message_templates
		SET name = $2, category = $3, language = $4, body = $5, variables = $6, header = $7, footer = $8,
			buttons = $9, media_urls = $10, provider_name = $11, provider_language = $12, provider_template_id = $13,
			approval_status = $14, origin_branch_id = $15, updated_at = $16
		WHERE id = $1`,
		t.ID, t.Name, string(t.Category), t.Language, t.Body, variables, t.Header, t.Footer, buttons, media,
		t.ProviderName, t.ProviderLanguage, t.ProviderTemplateID, string(t.ApprovalStatus), t.OriginBranchID, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("update template %q: %w", t.Name, domain.ErrDuplicateTemplateName)
		}
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update template %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PgTemplateRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM message_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete template %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
