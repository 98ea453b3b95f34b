// Package devicesmigrations embeds the schema migrations for the
// device registry database.
package devicesmigrations

import "embed"

//go:embed *.sql
var FS embed.FS
