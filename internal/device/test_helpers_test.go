package device

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the device schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "device-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE devices (
			uuid          TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			type          TEXT NOT NULL DEFAULT '',
			location      TEXT,
			mqtt_username TEXT NOT NULL,
			client_id     TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'UNKNOWN',
			last_seen_at  TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE UNIQUE INDEX idx_devices_name ON devices(name);
		CREATE UNIQUE INDEX idx_devices_client_id ON devices(client_id);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying device schema: %v", err)
	}

	return db
}

// fakeIssuer hands out deterministic credentials without calling the
// credential authority.
type fakeIssuer struct {
	calls atomic.Int64
	err   error
}

func (f *fakeIssuer) CreateAccount(_ context.Context, _, mqttUsername string) (*Credentials, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Credentials{
		MQTTUsername: mqttUsername,
		MQTTPassword: fmt.Sprintf("secret-%d", n),
		ClientID:     fmt.Sprintf("CLIENT%02d", n),
	}, nil
}

// newTestRegistry builds a registry over a temp database with a fake
// credential issuer.
func newTestRegistry(t *testing.T, issuer CredentialIssuer) (*Registry, Repository) {
	t.Helper()

	if issuer == nil {
		issuer = &fakeIssuer{}
	}
	repo := NewRepository(testDB(t))
	reg := NewRegistry(repo, issuer, 20, 100, logging.Default("device-test"))
	return reg, repo
}
