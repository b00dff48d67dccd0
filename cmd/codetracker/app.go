package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flozender/code-tracker-sub024/internal/backends/git"
	"github.com/flozender/code-tracker-sub024/internal/parser"
	"github.com/flozender/code-tracker-sub024/internal/tracker"
)

// commandContext is cancelled on SIGINT or SIGTERM, so a long walk stops
// and returns the partial history.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openTracker wires the git backend, the tree-sitter parser and the
// snapshot cache described by the loaded config.
func openTracker(ctx context.Context) (*tracker.Tracker, error) {
	repo, err := git.Open(repoFlag, appConfig.BlobTimeout(), appLogger)
	if err != nil {
		return nil, err
	}
	if !parser.Available() {
		appLogger.Warn("Built without cgo; every file will be reported as unsupported")
	}
	registry, err := parser.NewRegistry(appConfig.Parser.Languages)
	if err != nil {
		return nil, err
	}
	p := parser.New(registry, parser.Options{
		MaxFileSize: appConfig.Parser.MaxFileSize,
		Logger:      appLogger,
	})
	return tracker.Open(ctx, repo.Root(), appConfig, repo, p, appLogger)
}

// closeTracker flushes the snapshot cache; failures only cost a warm start.
func closeTracker(t *tracker.Tracker) {
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.BlobTimeout())
	defer cancel()
	if err := t.Close(ctx); err != nil {
		appLogger.Warn("Failed to persist snapshot cache", "error", err.Error())
	}
}
