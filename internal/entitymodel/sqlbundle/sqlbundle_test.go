package sqlbundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(Postgres())
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		assert.False(t, strings.HasPrefix(stmt, "--"), "statement starts with comment: %q", stmt)
		assert.True(t, strings.HasSuffix(stmt, ";"), "statement missing terminator: %q", stmt)
	}
	for _, table := range []string{"users", "forms", "fields", "responses", "answers"} {
		assert.Contains(t, Postgres(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- comment\nCREATE TABLE a (id INT);\n\nSELECT 1")
	assert.Equal(t, []string{"CREATE TABLE a (id INT);", "SELECT 1"}, stmts)
}

func TestSQLiteBundle(t *testing.T) {
	stmts := SplitStatements(SQLite())
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS state")
}
