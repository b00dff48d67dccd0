package snapshot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/flozender/code-tracker-sub024/internal/errors"
)

// FileStoreName is the file name used inside the cache directory.
const FileStoreName = "snapshots.jsonl.zst"

type fileHeader struct {
	Schema int `json:"schema"`
}

type fileRecord struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// FileStore keeps the cache in one zstd-compressed JSON-lines file: a
// {"schema":N} header line followed by one {"key","value"} line per entry.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte)

	f, err := os.Open(s.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	var header fileHeader
	if err := dec.Decode(&header); err != nil {
		s.logger.Warn("Discarding unreadable snapshot file", "path", s.path, "error", err.Error())
		return out, nil
	}
	if header.Schema != SchemaVersion {
		s.logger.Warn("Snapshot cache schema mismatch, starting cold",
			"code", errors.CacheSchemaMismatch,
			"path", s.path,
			"found", header.Schema,
			"want", SchemaVersion,
		)
		return out, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec fileRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("Discarding truncated snapshot file", "path", s.path, "error", err.Error())
			return make(map[string][]byte), nil
		}
		out[rec.Key] = []byte(rec.Value)
	}

	s.logger.Debug("Snapshot file loaded", "path", s.path, "entries", len(out))
	return out, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(ctx context.Context, payloads map[string][]byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshots-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.write(ctx, tmp, payloads); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	s.logger.Debug("Snapshot file written", "path", s.path, "entries", len(payloads))
	return nil
}

func (s *FileStore) write(ctx context.Context, w io.Writer, payloads map[string][]byte) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	enc := json.NewEncoder(zw)
	if err := enc.Encode(fileHeader{Schema: SchemaVersion}); err != nil {
		zw.Close()
		return fmt.Errorf("write header: %w", err)
	}

	keys := make([]string, 0, len(payloads))
	for k := range payloads {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		if err := enc.Encode(fileRecord{Key: k, Value: payloads[k]}); err != nil {
			zw.Close()
			return fmt.Errorf("write %s: %w", k, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot file: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
