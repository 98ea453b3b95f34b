// Package database provides SQLite connection management and schema
// migrations for the services that persist state locally (authacld and
// deviced). Each service owns its own database file and embeds its own
// migration files, applied through Migrate at startup.
package database
