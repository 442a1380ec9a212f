// Package migrations embeds the vault's PostgreSQL schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
