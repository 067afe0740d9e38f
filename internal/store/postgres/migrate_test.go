package postgres

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Money columns are plain NUMERIC so the database never rounds what the
// service computed.
func TestMigrationsKeepNumericUnconstrained(t *testing.T) {
	scaled := regexp.MustCompile(`(?i)\bNUMERIC\s*\(`)

	files, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		raw, err := fs.ReadFile(migrationFiles, name)
		require.NoError(t, err)
		for i, line := range strings.Split(string(raw), "\n") {
			assert.False(t, scaled.MatchString(line), "%s:%d declares a scaled NUMERIC: %s", name, i+1, strings.TrimSpace(line))
		}
	}
}
