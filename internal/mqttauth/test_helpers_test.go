package mqttauth

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the account schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "mqttauth-test-*.db")
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
		CREATE TABLE accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			client_id     TEXT NOT NULL,
			device_ref    TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE UNIQUE INDEX idx_accounts_username ON accounts(username);
		CREATE UNIQUE INDEX idx_accounts_client_id ON accounts(client_id);

		CREATE TABLE permissions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			topic_pattern TEXT NOT NULL,
			action        TEXT NOT NULL,
			effect        TEXT NOT NULL,
			allowed_qos   INTEGER NOT NULL
		);

		CREATE INDEX idx_permissions_account_id ON permissions(account_id);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying account schema: %v", err)
	}

	return db
}

// seedAccount inserts a test account with the default permission set
// and returns it with the plaintext password attached.
func seedAccount(t *testing.T, db *sql.DB, username, password, clientID string) *Account {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewAccountRepository(db)
	account := &Account{
		Username:     username,
		PasswordHash: hash,
		ClientID:     clientID,
		Permissions:  DefaultPermissions(clientID),
	}
	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("creating test account %s: %v", username, err)
	}
	account.Password = password
	return account
}

// newTestService builds a service over the given repository with fast
// test-friendly options.
func newTestService(t *testing.T, repo AccountRepository, opts Options) *Service {
	t.Helper()

	if opts.DecisionTimeout == 0 {
		opts.DecisionTimeout = 2 * time.Second
	}
	return NewService(repo, opts, logging.Default("mqttauth-test"))
}
