// Package migrations embeds the goose-managed schema for the party-hub
// Entity Store so the binary carries its own schema with no separate
// migration-file deployment step.
package migrations

import "embed"

// FS holds every .sql migration file, consumed by store.Migrate via goose's
// SetBaseFS.
//
//go:embed *.sql
var FS embed.FS
