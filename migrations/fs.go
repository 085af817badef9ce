// Package migrations embeds the SQL migration set (up and down files)
// applied by cmd/migrate (§6.3).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
