package domain

import (
	"fmt"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// TargetType selects which part of the school directory a message is addressed to.
type TargetType string

const (
	TargetAllContacts        TargetType = "ALL_CONTACTS"
	TargetAllStudents        TargetType = "ALL_STUDENTS"
	TargetIndividualStudents TargetType = "INDIVIDUAL_STUDENTS"
	TargetEntireClass        TargetType = "ENTIRE_CLASS"
	TargetIndividualSection  TargetType = "INDIVIDUAL_SECTION"
	TargetTeachers           TargetType = "TEACHERS"
	TargetEmployees          TargetType = "EMPLOYEES"
)

// ContactType picks which phone of a student record is addressed.
type ContactType string

const (
	ContactStudent ContactType = "STUDENT"
	ContactFather  ContactType = "FATHER"
	ContactMother  ContactType = "MOTHER"
)

// RecipientType maps a contact type to the recipient tag it produces.
func (c ContactType) RecipientType() coredomain.RecipientType {
	switch c {
	case ContactFather:
		return coredomain.RecipientFather
	case ContactMother:
		return coredomain.RecipientMother
	default:
		return coredomain.RecipientStudent
	}
}

// TargetSpec is the caller's description of who should receive a message.
type TargetSpec struct {
	Type         TargetType    `json:"recipientType" validate:"required"`
	BranchID     string        `json:"branchId" validate:"required"`
	SessionID    string        `json:"sessionId,omitempty"`
	ClassIDs     []string      `json:"classIds,omitempty"`
	SectionIDs   []string      `json:"sectionIds,omitempty"`
	StudentIDs   []string      `json:"studentIds,omitempty"`
	EmployeeIDs  []string      `json:"employeeIds,omitempty"`
	Search       string        `json:"searchTerm,omitempty"`
	ContactTypes []ContactType `json:"contactType,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	Offset       int           `json:"offset,omitempty"`
}

func (s TargetSpec) Validate() error {
	if s.BranchID == "" {
		return fmt.Errorf("%w: branch is required", coredomain.ErrInvalidTarget)
	}
	switch s.Type {
	case TargetAllContacts, TargetAllStudents, TargetTeachers, TargetEmployees:
	case TargetIndividualStudents:
		if len(s.StudentIDs) == 0 {
			return fmt.Errorf("%w: %s requires student ids", coredomain.ErrInvalidTarget, s.Type)
		}
	case TargetEntireClass:
		if len(s.ClassIDs) == 0 {
			return fmt.Errorf("%w: %s requires class ids", coredomain.ErrInvalidTarget, s.Type)
		}
	case TargetIndividualSection:
		if len(s.SectionIDs) == 0 {
			return fmt.Errorf("%w: %s requires section ids", coredomain.ErrInvalidTarget, s.Type)
		}
	default:
		return fmt.Errorf("%w: unknown recipient type %q", coredomain.ErrInvalidTarget, s.Type)
	}
	for _, c := range s.ContactTypes {
		switch c {
		case ContactStudent, ContactFather, ContactMother:
		default:
			return fmt.Errorf("%w: unknown contact type %q", coredomain.ErrInvalidTarget, c)
		}
	}
	return nil
}

// EffectiveContactTypes defaults to the student's own phone.
func (s TargetSpec) EffectiveContactTypes() []ContactType {
	if s.Type == TargetAllContacts {
		return []ContactType{ContactStudent, ContactFather, ContactMother}
	}
	if len(s.ContactTypes) == 0 {
		return []ContactType{ContactStudent}
	}
	return s.ContactTypes
}
