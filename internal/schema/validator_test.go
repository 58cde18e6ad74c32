package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRow map[string]string

func (m mapRow) Get(col string) string { return m[col] }

func (m mapRow) Has(col string) bool {
	_, ok := m[col]
	return ok
}

func validProjectRow() mapRow {
	return mapRow{
		ColTitle:            "Alpha",
		ColCoordinator:      "Ana Lima",
		ColCoordinatorEmail: "ana@example.org",
		ColStart:            "01-01-24",
		ColEnd:              "31-12-24",
	}
}

func TestValidateHeaders_AllRequired(t *testing.T) {
	// Test that all required headers present passes validation
	headers := []string{ColTitle, ColCoordinator, ColCoordinatorEmail, ColStart, ColEnd, ColStudents}
	warnings, errors := ValidateHeaders(headers, ProjectSchema())

	assert.Empty(t, errors, "Should have no errors with all required headers")
	assert.Empty(t, warnings, "Should have no warnings with only known headers")
}

func TestValidateHeaders_MissingRequired(t *testing.T) {
	headers := []string{ColTitle, ColCoordinator, ColStart, ColEnd}
	warnings, errors := ValidateHeaders(headers, ProjectSchema())

	assert.Empty(t, warnings)
	require.Len(t, errors, 1, "Should have exactly one error")
	assert.Contains(t, errors[0], ColCoordinatorEmail)
	assert.Contains(t, errors[0], "not found")
}

func TestValidateHeaders_UnexpectedColumn(t *testing.T) {
	// Test that extra column returns warning, not error
	headers := []string{ColName, ColCampus, ColKnowledgeArea, ColLeaders, "extra_field1", "extra_field2"}
	warnings, errors := ValidateHeaders(headers, GroupSchema())

	assert.Empty(t, errors, "Should have no errors for unexpected columns")
	require.Len(t, warnings, 2, "Should have exactly two warnings")
	assert.Contains(t, warnings[0], "extra_field1")
	assert.Contains(t, warnings[1], "extra_field2")
}

func TestValidateRow_ValidData(t *testing.T) {
	res := ValidateRow(validProjectRow(), ProjectSchema())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateRow_MissingRequiredStopsEarly(t *testing.T) {
	// Both a missing field and a bad email: only the missing field is reported
	row := validProjectRow()
	delete(row, ColTitle)
	row[ColCoordinator] = ""
	row[ColCoordinatorEmail] = "not-an-email"

	res := ValidateRow(row, ProjectSchema())

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "'Titulo' is missing")
	assert.Contains(t, res.Errors[1], "'Coordenador' is empty")
}

func TestValidateRow_CollectsAllFormatErrors(t *testing.T) {
	row := validProjectRow()
	row[ColCoordinatorEmail] = "ana@"
	row[ColStart] = "2024-01-01"
	row[ColEnd] = "32-13-24"

	res := ValidateRow(row, ProjectSchema())

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "not a valid email")
	assert.Contains(t, res.Errors[1], "'Inicio' must be a date in DD-MM-YY format")
	assert.Contains(t, res.Errors[2], "'Fim' must be a date in DD-MM-YY format")
}

func TestValidateRow_EndBeforeStart(t *testing.T) {
	row := validProjectRow()
	row[ColStart] = "01-06-24"
	row[ColEnd] = "01-01-24"

	res := ValidateRow(row, ProjectSchema())

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "is before start date")
}

func TestValidateRow_SameDayIsValid(t *testing.T) {
	row := validProjectRow()
	row[ColStart] = "15-03-24"
	row[ColEnd] = "15-03-24"

	assert.True(t, ValidateRow(row, ProjectSchema()).Valid)
}

func TestValidateRow_GroupSchemaHasNoDateRules(t *testing.T) {
	row := mapRow{
		ColName:          "Grupo de Robótica",
		ColCampus:        "Vitória",
		ColKnowledgeArea: "Engenharias",
		ColLeaders:       "Ana Lima (ana@example.org)",
	}

	assert.True(t, ValidateRow(row, GroupSchema()).Valid)
}

func TestSchema_ParseDate(t *testing.T) {
	s := ProjectSchema()

	d, err := s.ParseDate("05-02-24")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, 2, int(d.Month()))
	assert.Equal(t, 5, d.Day())

	d, err = s.ParseDate("")
	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("jane.doe+lab@uni.edu.br"))
	assert.False(t, ValidEmail("jane@localhost"))
	assert.False(t, ValidEmail("jane doe@x.com"))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("ana@@ufes.br"))
	assert.False(t, ValidEmail("ana@ufes."))
	assert.True(t, ValidEmail("joão.silva@ufes.br"))
}
