package main

import (
	"fmt"
	"os"

	"rotabak/internal/config"
	"rotabak/internal/keys"
)

func generateKey() error {
	_, err := keys.Generate(os.Stdout)
	return err
}

func testKeys(configPath, privateKeyPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return keys.Test(cfg, privateKeyPath, os.Stdout)
}
