// Package migrations embeds the SQL schema applied by `odyssey migrate`.
package migrations

import "embed"

// FS holds every *.sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
