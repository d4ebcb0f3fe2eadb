// Package dbmigrations exposes embedded SQL migrations for krakenbridge binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into krakenbridge binaries.
//
//go:embed *.sql
var Files embed.FS
