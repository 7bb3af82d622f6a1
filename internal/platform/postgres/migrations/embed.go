// Package migrations embeds the goose SQL migrations for the worker schema.
package migrations

import "embed"

// FS holds every migration file. Paths are relative to this directory.
//
//go:embed *.sql
var FS embed.FS
