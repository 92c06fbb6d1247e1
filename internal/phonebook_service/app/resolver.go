package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/phonebook_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

// Resolver turns a TargetSpec into addressable recipients.
type Resolver struct {
	db        database.Querier
	directory domain.Directory
	checker   authz.Checker
	logger    *slog.Logger
}

// NewResolver creates a new Resolver instance.
func NewResolver(db database.Querier, directory domain.Directory, checker authz.Checker, logger *slog.Logger) *Resolver {
	return &Resolver{
		db:        db,
		directory: directory,
		checker:   checker,
		logger:    logger.With("service", "recipient_resolver"),
	}
}

type recipientKey struct {
	typ coredomain.RecipientType
	id  string
}

// Resolve lists the recipients addressed by spec. Contacts without a phone for the
// requested contact type are skipped. Recipients are unique per (type, id) only.
func (r *Resolver) Resolve(ctx context.Context, actor authz.Actor, spec domain.TargetSpec) ([]coredomain.Recipient, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !r.checker.Can(ctx, actor, authz.PermMessagesRead, spec.BranchID) {
		return nil, fmt.Errorf("%w: cannot read contacts of branch %s", coredomain.ErrForbidden, spec.BranchID)
	}

	var (
		out  []coredomain.Recipient
		seen = make(map[recipientKey]struct{})
	)
	emit := func(rec coredomain.Recipient) {
		if strings.TrimSpace(rec.Phone) == "" {
			return
		}
		key := recipientKey{typ: rec.Type, id: rec.ID}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}

	if filter, ok := studentFilter(spec); ok {
		students, err := r.directory.ListStudents(ctx, r.db, filter)
		if err != nil {
			return nil, fmt.Errorf("resolve students: %w", err)
		}
		contactTypes := spec.EffectiveContactTypes()
		for _, s := range students {
			for _, ct := range contactTypes {
				emit(studentRecipient(s, ct))
			}
		}
	}

	for _, teachers := range staffKinds(spec.Type) {
		filter := domain.StaffFilter{BranchID: spec.BranchID, Teachers: teachers, Search: spec.Search}
		if spec.Type != domain.TargetAllContacts {
			filter.EmployeeIDs = spec.EmployeeIDs
			filter.Limit, filter.Offset = spec.Limit, spec.Offset
		}
		staff, err := r.directory.ListStaff(ctx, r.db, filter)
		if err != nil {
			return nil, fmt.Errorf("resolve staff: %w", err)
		}
		for _, e := range staff {
			emit(staffRecipient(e))
		}
	}

	r.logger.InfoContext(ctx, "Recipients resolved", "branch_id", spec.BranchID, "target", spec.Type, "count", len(out))
	return out, nil
}

// studentFilter reports whether the target reads students and how.
// ALL_CONTACTS is branch-wide and never paginated.
func studentFilter(spec domain.TargetSpec) (domain.StudentFilter, bool) {
	f := domain.StudentFilter{BranchID: spec.BranchID, SessionID: spec.SessionID, Search: spec.Search}
	switch spec.Type {
	case domain.TargetAllContacts:
		return f, true
	case domain.TargetAllStudents, domain.TargetEntireClass, domain.TargetIndividualSection:
		f.ClassIDs, f.SectionIDs = spec.ClassIDs, spec.SectionIDs
	case domain.TargetIndividualStudents:
		f.StudentIDs = spec.StudentIDs
	default:
		return f, false
	}
	f.Limit, f.Offset = spec.Limit, spec.Offset
	return f, true
}

// staffKinds lists the is_teacher values a target reads.
func staffKinds(t domain.TargetType) []bool {
	switch t {
	case domain.TargetAllContacts:
		return []bool{true, false}
	case domain.TargetTeachers:
		return []bool{true}
	case domain.TargetEmployees:
		return []bool{false}
	}
	return nil
}

func studentRecipient(s *domain.StudentRecord, ct domain.ContactType) coredomain.Recipient {
	var name, phone string
	switch ct {
	case domain.ContactFather:
		name, phone = s.FatherName, s.FatherMobile
	case domain.ContactMother:
		name, phone = s.MotherName, s.MotherMobile
	default:
		name, phone = s.Name, s.Phone
	}
	if name == "" {
		name = fmt.Sprintf("%s (%s)", s.Name, strings.ToLower(string(ct)))
	}
	return coredomain.Recipient{
		ID:    s.ID,
		Type:  ct.RecipientType(),
		Name:  name,
		Phone: phone,
		Additional: coredomain.StudentContact{
			Student: coredomain.StudentInfo{
				ID:              s.ID,
				Name:            s.Name,
				Class:           s.ClassName,
				Section:         s.SectionName,
				AdmissionNumber: s.AdmissionNumber,
			},
			ContactType:       string(ct),
			ContactPersonName: name,
		},
	}
}

func staffRecipient(e *domain.StaffRecord) coredomain.Recipient {
	rec := coredomain.Recipient{ID: e.ID, Name: e.Name, Phone: e.Phone}
	if e.IsTeacher {
		rec.Type = coredomain.RecipientTeacher
		rec.Additional = coredomain.TeacherContact{EmployeeID: e.ID, Name: e.Name, Designation: e.Designation, Department: e.Department}
	} else {
		rec.Type = coredomain.RecipientEmployee
		rec.Additional = coredomain.EmployeeContact{EmployeeID: e.ID, Name: e.Name, Designation: e.Designation, Department: e.Department}
	}
	return rec
}
