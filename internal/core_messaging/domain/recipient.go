package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RecipientType tags who a recipient is relative to the school.
type RecipientType string

const (
	RecipientStudent  RecipientType = "student"
	RecipientFather   RecipientType = "father"
	RecipientMother   RecipientType = "mother"
	RecipientTeacher  RecipientType = "teacher"
	RecipientEmployee RecipientType = "employee"
)

func (t RecipientType) Valid() bool {
	switch t {
	case RecipientStudent, RecipientFather, RecipientMother, RecipientTeacher, RecipientEmployee:
		return true
	}
	return false
}

// Recipient is an addressable contact produced by the resolver. It is not persisted on its own;
// a send materializes it into a MessageRecipient.
type Recipient struct {
	ID         string        `json:"id"`
	Type       RecipientType `json:"type"`
	Name       string        `json:"name"`
	Phone      string        `json:"phone"`
	Additional RecipientData `json:"additional,omitempty"`
}

// RecipientData is the personalization payload attached to a recipient.
// Variants: StudentContact, TeacherContact, EmployeeContact and StoredContact.
type RecipientData interface {
	// Fields returns the payload as nested maps keyed the same way as its JSON form.
	Fields() map[string]any
}

// StudentInfo identifies the child a student-derived recipient is about.
type StudentInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Class           string `json:"class"`
	Section         string `json:"section"`
	AdmissionNumber string `json:"admissionNumber"`
}

// StudentContact is attached to student, father and mother recipients.
// Student always describes the child, whichever contact is addressed.
type StudentContact struct {
	Student           StudentInfo `json:"student"`
	ContactType       string      `json:"contactType"`
	ContactPersonName string      `json:"contactPersonName"`
}

func (c StudentContact) Fields() map[string]any {
	return map[string]any{
		"student": map[string]any{
			"id":              c.Student.ID,
			"name":            c.Student.Name,
			"class":           c.Student.Class,
			"section":         c.Student.Section,
			"admissionNumber": c.Student.AdmissionNumber,
		},
		"contactType":       c.ContactType,
		"contactPersonName": c.ContactPersonName,
	}
}

// TeacherContact is attached to teacher recipients.
type TeacherContact struct {
	EmployeeID  string `json:"employeeId"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Department  string `json:"department"`
}

func (c TeacherContact) Fields() map[string]any {
	return map[string]any{
		"employeeId":        c.EmployeeID,
		"name":              c.Name,
		"designation":       c.Designation,
		"department":        c.Department,
		"contactType":       "TEACHER",
		"contactPersonName": c.Name,
	}
}

// EmployeeContact is attached to non-teaching staff recipients.
type EmployeeContact struct {
	EmployeeID  string `json:"employeeId"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Department  string `json:"department"`
}

func (c EmployeeContact) Fields() map[string]any {
	return map[string]any{
		"employeeId":        c.EmployeeID,
		"name":              c.Name,
		"designation":       c.Designation,
		"department":        c.Department,
		"contactType":       "EMPLOYEE",
		"contactPersonName": c.Name,
	}
}

// StoredContact is a payload rehydrated from storage or received from a client.
type StoredContact map[string]any

func (c StoredContact) Fields() map[string]any {
	return map[string]any(c)
}

// DataFields returns the recipient payload, or nil when it has none.
func (r Recipient) DataFields() map[string]any {
	if r.Additional == nil {
		return nil
	}
	return r.Additional.Fields()
}

// Lookup walks a dotted path such as "student.name" through the payload.
// A missing segment, a non-object intermediate or an empty leaf yields ok=false.
func (r Recipient) Lookup(path string) (string, bool) {
	return LookupPath(r.DataFields(), path)
}

// LookupPath walks a dotted path through nested maps.
func LookupPath(fields map[string]any, path string) (string, bool) {
	path = strings.TrimSpace(path)
	if fields == nil || path == "" {
		return "", false
	}

	var current any = fields
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return "", false
			}
			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return "", false
			}
			current = next
		default:
			return "", false
		}
	}

	value, ok := scalarString(current)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

// UnmarshalJSON decodes the additional payload into a StoredContact.
func (r *Recipient) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID         string         `json:"id"`
		Type       RecipientType  `json:"type"`
		Name       string         `json:"name"`
		Phone      string         `json:"phone"`
		Additional map[string]any `json:"additional"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	r.ID, r.Type, r.Name, r.Phone = a.ID, a.Type, a.Name, a.Phone
	r.Additional = nil
	if a.Additional != nil {
		r.Additional = StoredContact(a.Additional)
	}
	return nil
}
