// Package sqldocs exposes the formcore SQL bundles directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL used by the snapshot store.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the normalized Postgres DDL.
//
//go:embed postgres.sql
var Postgres string
