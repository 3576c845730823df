// Package migrations embeds the SQL migration files for the workflow
// runtime's durable store, discovered by internal/repository.NewMigrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
