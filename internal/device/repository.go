package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByUUID(ctx context.Context, uuid string) (*Device, error)
	GetByClientID(ctx context.Context, clientID string) (*Device, error)
	List(ctx context.Context, limit, offset int) ([]Device, error)
	Count(ctx context.Context) (int, error)
	UpdateStatus(ctx context.Context, clientID, status string, seenAt time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed device repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "uuid, name, type, location, mqtt_username, client_id, status, last_seen_at, created_at, updated_at"

// Create inserts a new device record.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	now := time.Now().UTC().Format(time.RFC3339)
	d.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	d.UpdatedAt = d.CreatedAt
	if d.Status == "" {
		d.Status = StatusUnknown
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (uuid, name, type, location, mqtt_username, client_id, status, last_seen_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UUID, d.Name, d.Type, nullString(d.Location),
		d.MQTTUsername, d.ClientID, d.Status, nullTime(d.LastSeenAt), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameExists
		}
		return fmt.Errorf("creating device: %w", err)
	}

	return nil
}

// GetByUUID retrieves a device by its registry identifier.
func (r *SQLiteRepository) GetByUUID(ctx context.Context, uuid string) (*Device, error) {
	return r.getDevice(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE uuid = ?", uuid)
}

// GetByClientID retrieves a device by its MQTT client id.
func (r *SQLiteRepository) GetByClientID(ctx context.Context, clientID string) (*Device, error) {
	return r.getDevice(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE client_id = ?", clientID)
}

// List returns devices ordered by creation date, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit, offset int) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices ORDER BY created_at DESC, uuid LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceFrom(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Count returns the total number of devices.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return count, nil
}

// UpdateStatus records a status transition for the device owning the
// client id. Unknown client ids are not an error: status events can
// arrive for devices registered elsewhere.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, clientID, status string, seenAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_seen_at = ?, updated_at = ? WHERE client_id = ?`,
		status, seenAt.UTC().Format(time.RFC3339), now, clientID,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return nil
}

// getDevice executes a query and scans a single device result.
func (r *SQLiteRepository) getDevice(ctx context.Context, query string, args ...any) (*Device, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanDeviceFrom(row)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanDeviceFrom scans a device from any scanner (Row or Rows).
func scanDeviceFrom(s scanner) (*Device, error) {
	var d Device
	var location, lastSeenAt sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&d.UUID, &d.Name, &d.Type, &location,
		&d.MQTTUsername, &d.ClientID, &d.Status, &lastSeenAt,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	if location.Valid {
		d.Location = location.String
	}
	if lastSeenAt.Valid {
		d.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeenAt.String) //nolint:errcheck // format is controlled
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &d, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
