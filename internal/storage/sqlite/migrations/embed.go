package migrations

import "embed"

// FS contains embedded SQLite migrations for graph storage.
//
//go:embed *.sql
var FS embed.FS
