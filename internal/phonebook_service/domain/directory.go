package domain

import (
	"context"

	"github.com/campusline/comms_services/internal/platform/database"
)

// StudentRecord is one student row joined with class, section and parents.
type StudentRecord struct {
	ID              string
	Name            string
	Phone           string
	ClassName       string
	SectionName     string
	AdmissionNumber string
	FatherName      string
	FatherMobile    string
	MotherName      string
	MotherMobile    string
}

// StaffRecord is one active employee.
type StaffRecord struct {
	ID          string
	Name        string
	Phone       string
	Designation string
	Department  string
	IsTeacher   bool
}

// StudentFilter narrows a student listing. Zero Limit means no cap.
type StudentFilter struct {
	BranchID   string
	SessionID  string
	ClassIDs   []string
	SectionIDs []string
	StudentIDs []string
	Search     string
	Limit      int
	Offset     int
}

// StaffFilter narrows an employee listing. Zero Limit means no cap.
type StaffFilter struct {
	BranchID    string
	Teachers    bool
	EmployeeIDs []string
	Search      string
	Limit       int
	Offset      int
}

// Directory is the read model over the host application's people tables.
type Directory interface {
	ListStudents(ctx context.Context, q database.Querier, f StudentFilter) ([]*StudentRecord, error)
	ListStaff(ctx context.Context, q database.Querier, f StaffFilter) ([]*StaffRecord, error)
}
