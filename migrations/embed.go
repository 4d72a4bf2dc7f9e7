// Package migrations embeds the Postgres schema for the customer table.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
