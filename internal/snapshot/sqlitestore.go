package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flozender/code-tracker-sub024/internal/errors"
	"github.com/flozender/code-tracker-sub024/internal/storage"
)

const schemaMetaKey = "snapshot_schema"

// SQLiteStore keeps zstd-compressed entries in a sqlite database.
type SQLiteStore struct {
	db     *storage.DB
	repo   *storage.SnapshotRepository
	logger *slog.Logger

	// keys read by the last Load; Save skips them.
	loaded map[string]struct{}
}

// OpenSQLiteStore opens or creates the database inside dir.
func OpenSQLiteStore(dir string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := storage.Open(dir, logger)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, repo: storage.NewSnapshotRepository(db), logger: logger}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (map[string][]byte, error) {
	value, ok, err := s.repo.Meta(ctx, schemaMetaKey)
	if err != nil {
		return nil, err
	}
	if ok && value != strconv.Itoa(SchemaVersion) {
		s.logger.Warn("Snapshot cache schema mismatch, starting cold",
			"code", errors.CacheSchemaMismatch,
			"path", s.db.Path(),
			"found", value,
			"want", SchemaVersion,
		)
		if err := s.repo.Clear(ctx); err != nil {
			return nil, err
		}
		s.loaded = nil
		return make(map[string][]byte), nil
	}

	stored, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(stored))
	s.loaded = make(map[string]struct{}, len(stored))
	for k, v := range stored {
		s.loaded[k] = struct{}{}
		payload, err := decompress(v)
		if err != nil {
			s.logger.Warn("Skipping corrupt snapshot", "key", k, "error", err.Error())
			continue
		}
		out[k] = payload
	}
	s.logger.Debug("Snapshot database loaded", "path", s.db.Path(), "entries", len(out))
	return out, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, payloads map[string][]byte) error {
	compressed := make(map[string][]byte, len(payloads))
	for k, v := range payloads {
		if _, ok := s.loaded[k]; ok {
			continue
		}
		c, err := compress(v)
		if err != nil {
			return err
		}
		compressed[k] = c
	}
	written, err := s.repo.PutAll(ctx, compressed)
	if err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	if err := s.repo.SetMeta(ctx, schemaMetaKey, strconv.Itoa(SchemaVersion)); err != nil {
		return err
	}
	s.logger.Debug("Snapshot database written", "path", s.db.Path(), "new", written)
	return nil
}

// Count returns the number of persisted entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.loaded = nil
	return s.repo.Clear(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
