package mqttauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence.
//
// Uniqueness of username and client id is enforced by the storage
// layer; Create must fail with ErrUsernameExists or ErrClientIDExists
// on constraint violation so callers can distinguish the two.
type AccountRepository interface {
	// Create persists an account together with its permissions as a
	// single transactional unit.
	Create(ctx context.Context, account *Account) error
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByClientID(ctx context.Context, clientID string) (*Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	ClientIDExists(ctx context.Context, clientID string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

// Create inserts an account and its permissions in one transaction.
// The ID is generated if empty. Unique constraint violations map to
// ErrUsernameExists or ErrClientIDExists.
func (r *SQLiteAccountRepository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = "mqa-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	account.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	account.UpdatedAt = account.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, client_id, device_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Username, account.PasswordHash, account.ClientID,
		nullString(account.DeviceRef), now, now,
	)
	if err != nil {
		if violated, column := uniqueViolation(err); violated {
			switch column {
			case "client_id":
				return ErrClientIDExists
			default:
				return ErrUsernameExists
			}
		}
		return fmt.Errorf("creating account: %w", err)
	}

	for i := range account.Permissions {
		p := &account.Permissions[i]
		p.AccountID = account.ID

		result, err := tx.ExecContext(ctx,
			`INSERT INTO permissions (account_id, topic_pattern, action, effect, allowed_qos)
			 VALUES (?, ?, ?, ?, ?)`,
			p.AccountID, p.TopicPattern, string(p.Action), string(p.Effect), int(p.AllowedQoS),
		)
		if err != nil {
			return fmt.Errorf("creating permission: %w", err)
		}
		p.ID, _ = result.LastInsertId() //nolint:errcheck // always succeeds on SQLite
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing account: %w", err)
	}
	return nil
}

// GetByUsername retrieves an account and its permissions by username.
func (r *SQLiteAccountRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.getAccount(ctx,
		"SELECT id, username, password_hash, client_id, device_ref, created_at, updated_at FROM accounts WHERE username = ?",
		username)
}

// GetByClientID retrieves an account and its permissions by client id.
func (r *SQLiteAccountRepository) GetByClientID(ctx context.Context, clientID string) (*Account, error) {
	return r.getAccount(ctx,
		"SELECT id, username, password_hash, client_id, device_ref, created_at, updated_at FROM accounts WHERE client_id = ?",
		clientID)
}

// UsernameExists reports whether any account holds the username.
func (r *SQLiteAccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "SELECT COUNT(*) FROM accounts WHERE username = ?", username)
}

// ClientIDExists reports whether any account holds the client id.
func (r *SQLiteAccountRepository) ClientIDExists(ctx context.Context, clientID string) (bool, error) {
	return r.exists(ctx, "SELECT COUNT(*) FROM accounts WHERE client_id = ?", clientID)
}

// Count returns the total number of accounts.
func (r *SQLiteAccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

// getAccount executes a query, scans the account, and loads its permissions.
func (r *SQLiteAccountRepository) getAccount(ctx context.Context, query string, arg any) (*Account, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	var a Account
	var deviceRef sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.ClientID,
		&deviceRef, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	if deviceRef.Valid {
		a.DeviceRef = deviceRef.String
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	perms, err := r.loadPermissions(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Permissions = perms

	return &a, nil
}

// loadPermissions fetches the permissions owned by an account.
func (r *SQLiteAccountRepository) loadPermissions(ctx context.Context, accountID string) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, account_id, topic_pattern, action, effect, allowed_qos FROM permissions WHERE account_id = ? ORDER BY id ASC",
		accountID)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		var action, effect string
		var allowedQoS int

		if err := rows.Scan(&p.ID, &p.AccountID, &p.TopicPattern, &action, &effect, &allowedQoS); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}

		p.Action = Action(action)
		p.Effect = Effect(effect)
		p.AllowedQoS = QoSSet(allowedQoS) //nolint:gosec // G115: stored value is a 3-bit mask

		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}

	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// exists runs a COUNT query with a single argument.
func (r *SQLiteAccountRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return count > 0, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// uniqueViolation checks if a SQLite error is a UNIQUE constraint
// violation and reports which column it names.
func uniqueViolation(err error) (bool, string) {
	if err == nil {
		return false, ""
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "unique constraint") {
		return false, ""
	}
	if strings.Contains(msg, "client_id") {
		return true, "client_id"
	}
	if strings.Contains(msg, "username") {
		return true, "username"
	}
	return true, ""
}
