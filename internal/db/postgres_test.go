package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedAndEmbedded(t *testing.T) {
	names, err := MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	assert.Equal(t, "migrations/001_initial_schema.sql", names[0])
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestInitialSchema_DeclaresUniqueIdentityKeys(t *testing.T) {
	sqlBytes, err := migrations.ReadFile("migrations/001_initial_schema.sql")
	require.NoError(t, err)
	sql := string(sqlBytes)

	for _, idx := range []string{
		"person_emails_email_key",
		"campuses_name_key",
		"campuses_code_key",
		"knowledge_areas_name_key",
		"organizations_name_key",
		"organizational_units_short_name_campus_key",
		"initiatives_name_key",
	} {
		assert.True(t, strings.Contains(sql, idx), "missing unique index %s", idx)
	}
}
