package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

func feeTemplate() *coredomain.Template {
	return &coredomain.Template{
		ID: "tpl-1", Name: "fee_reminder", Body: "Dear {{parent}}, fees for {{student_name}} are due on {{due_date}}.",
		Variables: []string{"parent", "student_name", "due_date"},
	}
}

func studentRecipient(name string) coredomain.Recipient {
	return coredomain.Recipient{
		ID: "s-" + name, Type: coredomain.RecipientFather, Name: "Parent of " + name, Phone: "9876543210",
		Additional: coredomain.StudentContact{
			Student:           coredomain.StudentInfo{ID: "s-" + name, Name: name, Class: "5", Section: "A"},
			ContactType:       "FATHER",
			ContactPersonName: "Parent of " + name,
		},
	}
}

func TestBind_GlobalByPosition(t *testing.T) {
	tpl := &coredomain.Template{Name: "greet", Body: "Hello {{name}}", Variables: []string{"name"}}
	recipients := []coredomain.Recipient{studentRecipient("Asha"), studentRecipient("Bala")}

	res, err := Bind(tpl, map[string]string{"1": "Alice"}, nil, recipients)
	require.NoError(t, err)
	require.Len(t, res.Recipients, 2)
	assert.Equal(t, map[string]string{"name": "Alice"}, res.Recipients[0])
	assert.Equal(t, map[string]string{"name": "Alice"}, res.Recipients[1])
	assert.Empty(t, res.Warnings)
}

func TestBind_MissingGlobalsSuggestParameters(t *testing.T) {
	_, err := Bind(feeTemplate(), map[string]string{"parent": "Sir", "extra": "x"}, nil, []coredomain.Recipient{studentRecipient("Asha")})
	require.Error(t, err)
	assert.ErrorIs(t, err, coredomain.ErrInvalidParameters)

	var perr *coredomain.ParameterError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, []string{"student_name", "due_date"}, perr.Missing)
	assert.Equal(t, []string{"extra"}, perr.Unknown)
	assert.Equal(t, map[string]string{"parent": "Sir", "student_name": "<student_name>", "due_date": "<due_date>"}, perr.Suggested)
}

func TestBind_BlankGlobalCountsAsMissing(t *testing.T) {
	tpl := &coredomain.Template{Name: "greet", Body: "Hello {{name}}"}
	_, err := Bind(tpl, map[string]string{"name": "  "}, nil, nil)
	assert.ErrorIs(t, err, coredomain.ErrInvalidParameters)
}

func TestBind_DataMappings(t *testing.T) {
	mappings := []coredomain.DataMapping{
		{VariableName: "parent", DataField: "contactPersonName", FallbackValue: "Parent"},
		{VariableName: "student_name", DataField: "student.name", FallbackValue: "your ward"},
	}
	teacher := coredomain.Recipient{
		ID: "e1", Type: coredomain.RecipientTeacher, Name: "Meera", Phone: "9000000001",
		Additional: coredomain.TeacherContact{EmployeeID: "e1", Name: "Meera"},
	}
	recipients := []coredomain.Recipient{studentRecipient("Asha"), teacher, {ID: "x", Type: coredomain.RecipientStudent}}

	res, err := Bind(feeTemplate(), map[string]string{"3": "10 June"}, mappings, recipients)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"parent": "Parent of Asha", "student_name": "Asha", "due_date": "10 June"}, res.Recipients[0])
	assert.Equal(t, map[string]string{"parent": "Meera", "student_name": "your ward", "due_date": "10 June"}, res.Recipients[1])
	assert.Equal(t, map[string]string{"parent": "Parent", "student_name": "your ward", "due_date": "10 June"}, res.Recipients[2])
	assert.Empty(t, res.Warnings)
}

func TestBind_EmptyFallbackWarns(t *testing.T) {
	tpl := &coredomain.Template{Name: "greet", Body: "Hello {{name}} from {{class}}"}
	mappings := []coredomain.DataMapping{
		{VariableName: "name", DataField: "student.name"},
		{VariableName: "class", DataField: "student.class.name"},
		{VariableName: "nickname", DataField: "student.nickname"},
	}

	res, err := Bind(tpl, nil, mappings, []coredomain.Recipient{studentRecipient("Asha")})
	require.NoError(t, err)
	assert.Equal(t, "Asha", res.Recipients[0]["name"])
	assert.Equal(t, "", res.Recipients[0]["class"])
	assert.Contains(t, res.Warnings, `mapping for "nickname" does not match any template variable and was ignored`)
	assert.Contains(t, res.Warnings, `variable "class" resolved to an empty value for 1 recipient(s)`)
}

func TestBind_UnmappedVariableStillNeedsGlobal(t *testing.T) {
	mappings := []coredomain.DataMapping{{VariableName: "student_name", DataField: "student.name"}}
	_, err := Bind(feeTemplate(), nil, mappings, []coredomain.Recipient{studentRecipient("Asha")})

	var perr *coredomain.ParameterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"parent", "due_date"}, perr.Missing)
}
