// Package migrations embeds the library schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
