package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SnapshotRepository provides access to persisted snapshot payloads.
// Payloads are opaque to this package.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Meta returns a metadata value.
func (r *SnapshotRepository) Meta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores a metadata value.
func (r *SnapshotRepository) SetMeta(ctx context.Context, key, value string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		return err
	})
}

// All returns every stored payload by key.
func (r *SnapshotRepository) All(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, payload FROM snapshots")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out[key] = payload
	}
	return out, rows.Err()
}

// PutAll stores payloads in one transaction. Existing keys are left
// untouched since a snapshot never changes once computed.
func (r *SnapshotRepository) PutAll(ctx context.Context, payloads map[string][]byte) (int, error) {
	written := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO snapshots (key, payload, created_at) VALUES (?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for key, payload := range payloads {
			res, err := stmt.ExecContext(ctx, key, payload, now)
			if err != nil {
				return fmt.Errorf("failed to store snapshot %s: %w", key, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	return written, err
}

// Count returns the number of stored payloads.
func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Clear removes every payload and metadata value.
func (r *SnapshotRepository) Clear(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM meta")
		return err
	})
}
