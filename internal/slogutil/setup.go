package slogutil

import (
	"io"
	"log/slog"

	"github.com/flozender/code-tracker-sub024/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FromConfig builds the process logger: records go to w and, when cfg.File
// is set, also to a rotating log file. override, when non-nil, replaces
// cfg.Level for w; the file always logs at cfg.Level. The returned closer
// releases the file.
func FromConfig(cfg config.LoggingConfig, w io.Writer, override *slog.Level) (*slog.Logger, io.Closer, error) {
	level := LevelFromString(cfg.Level)
	consoleLevel := level
	if override != nil {
		consoleLevel = *override
	}
	console := NewHandler(w, cfg.Format, consoleLevel)
	if cfg.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	rf, err := OpenRotatingFile(cfg.File, ParseSize(cfg.MaxSize), cfg.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	file := NewHandler(rf, cfg.Format, level)
	return slog.New(NewTeeHandler(console, file)), rf, nil
}
