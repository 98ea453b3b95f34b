// Package mqttauthmigrations embeds the schema migrations for the
// authacld account database.
package mqttauthmigrations

import "embed"

// FS holds the *.up.sql migration files, applied by database.Migrate.
//
//go:embed *.sql
var FS embed.FS
