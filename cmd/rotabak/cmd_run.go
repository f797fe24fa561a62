package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"rotabak/internal/backup"
	"rotabak/internal/config"
	"rotabak/internal/report"
	"rotabak/internal/scheduler"
)

func runBackup(ctx context.Context, configPath string, quiet bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var console io.Writer = os.Stdout
	if quiet {
		console = nil
	}
	opts := backup.Options{Console: console}

	pub, err := report.NewPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	// A nil *Publisher must not end up inside the interface.
	if pub != nil {
		opts.Publisher = pub
	}

	_, err = backup.Run(ctx, cfg, opts)
	return err
}

// runDaemon fires a run per tick. The config is reloaded each time so edits
// take effect without a restart.
func runDaemon(ctx context.Context, configPath, schedule string) error {
	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	s := scheduler.New(slog.Default())
	err := s.AddJob(schedule, func(ctx context.Context) error {
		return runBackup(ctx, configPath, true)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	slog.Info("Backup daemon started", "config", configPath, "schedule", schedule)
	s.Run(ctx)
	slog.Info("Backup daemon stopped")
	return nil
}
