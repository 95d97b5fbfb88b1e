// Package sqlbundle exposes the embedded DDL bundles to persistence adapters.
package sqlbundle

import (
	"bufio"
	"strings"

	sqldocs "formcore/docs/schema/sql"
)

// SQLite returns the SQLite snapshot DDL.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the normalized Postgres DDL.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// Blank lines and "--" comment lines are dropped.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(trimmed)
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(' ')
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
