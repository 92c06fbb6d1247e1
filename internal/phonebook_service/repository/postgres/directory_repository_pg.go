package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/campusline/comms_services/internal/phonebook_service/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

// PgDirectoryRepository reads students, parents and employees of a branch.
type PgDirectoryRepository struct {
	logger *slog.Logger
}

func NewPgDirectoryRepository(logger *slog.Logger) *PgDirectoryRepository {
	return &PgDirectoryRepository{logger: logger.With("repository", "directory")}
}

type conditions struct {
	conds []string
	args  []any
}

func (c *conditions) add(format string, arg any) {
	c.args = append(c.args, arg)
	c.conds = append(c.conds, strings.ReplaceAll(format, "?", fmt.Sprintf("$%d", len(c.args))))
}

func (c *conditions) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	c.args = append(c.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(c.args)-1, len(c.args))
}

const studentQuery = `SELECT s.id::text, TRIM(s.first_name || ' ' || s.last_name), s.phone,
	COALESCE(c.name, ''), COALESCE(sec.name, ''), s.admission_number,
	COALESCE(f.name, ''), COALESCE(f.mobile, ''), COALESCE(m.name, ''), COALESCE(m.mobile, '')
	FROM students s
	LEFT JOIN classes c ON c.id = s.class_id
	LEFT JOIN sections sec ON sec.id = s.section_id
	LEFT JOIN parents f ON f.student_id = s.id AND f.relation = 'FATHER'
	LEFT JOIN parents m ON m.student_id = s.id AND m.relation = 'MOTHER'`

func (r *PgDirectoryRepository) ListStudents(ctx context.Context, q database.Querier, f domain.StudentFilter) ([]*domain.StudentRecord, error) {
	var c conditions
	c.add("s.branch_id::text = ?", f.BranchID)
	c.conds = append(c.conds, "s.is_active")
	if f.SessionID != "" {
		c.add("s.session_id::text = ?", f.SessionID)
	}
	if len(f.ClassIDs) > 0 {
		c.add("s.class_id::text = ANY(?::text[])", f.ClassIDs)
	}
	if len(f.SectionIDs) > 0 {
		c.add("s.section_id::text = ANY(?::text[])", f.SectionIDs)
	}
	if len(f.StudentIDs) > 0 {
		c.add("s.id::text = ANY(?::text[])", f.StudentIDs)
	}
	if f.Search != "" {
		c.add("(s.first_name || ' ' || s.last_name ILIKE ? OR s.admission_number ILIKE ?)", "%"+f.Search+"%")
	}

	query := studentQuery + ` WHERE ` + strings.Join(c.conds, " AND ") + ` ORDER BY s.first_name, s.last_name, s.id`
	query += c.page(f.Limit, f.Offset)

	rows, err := q.Query(ctx, query, c.args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list students", "error", err, "branch_id", f.BranchID)
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []*domain.StudentRecord
	for rows.Next() {
		var s domain.StudentRecord
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.ClassName, &s.SectionName, &s.AdmissionNumber,
			&s.FatherName, &s.FatherMobile, &s.MotherName, &s.MotherMobile); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *PgDirectoryRepository) ListStaff(ctx context.Context, q database.Querier, f domain.StaffFilter) ([]*domain.StaffRecord, error) {
	var c conditions
	c.add("branch_id::text = ?", f.BranchID)
	c.conds = append(c.conds, "is_active")
	c.add("is_teacher = ?", f.Teachers)
	if len(f.EmployeeIDs) > 0 {
		c.add("id::text = ANY(?::text[])", f.EmployeeIDs)
	}
	if f.Search != "" {
		c.add("(first_name || ' ' || last_name ILIKE ? OR designation ILIKE ?)", "%"+f.Search+"%")
	}

	query := `SELECT id::text, TRIM(first_name || ' ' || last_name), phone, designation, department, is_teacher
		FROM employees WHERE ` + strings.Join(c.conds, " AND ") + ` ORDER BY first_name, last_name, id`
	query += c.page(f.Limit, f.Offset)

	rows, err := q.Query(ctx, query, c.args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list employees", "error", err, "branch_id", f.BranchID)
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []*domain.StaffRecord
	for rows.Next() {
		var e domain.StaffRecord
		if err := rows.Scan(&e.ID, &e.Name, &e.Phone, &e.Designation, &e.Department, &e.IsTeacher); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
