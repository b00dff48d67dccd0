package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Store persists cache entries as a flat key/value map. Payloads are
// encoded entries; stores are free to compress them.
type Store interface {
	// Load returns every persisted payload. A store written under another
	// SchemaVersion yields an empty map and no error.
	Load(ctx context.Context) (map[string][]byte, error)

	// Save persists the complete cache content. Payloads never change once
	// written, so a key already present may be kept as is.
	Save(ctx context.Context, payloads map[string][]byte) error

	// Clear removes all persisted payloads.
	Clear(ctx context.Context) error

	// Close releases the store.
	Close() error
}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

func compress(b []byte) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return enc.EncodeAll(b, nil), nil
}

func decompress(b []byte) ([]byte, error) {
	_, dec, err := codec()
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
