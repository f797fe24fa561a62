package main

import (
	"context"
	"fmt"
	"os"

	"rotabak/internal/check"
	"rotabak/internal/config"
	"rotabak/internal/runner"
)

func runCheck(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return check.Run(ctx, cfg, &runner.Exec{Stderr: os.Stderr}, os.Stdout)
}
