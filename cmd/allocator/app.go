package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/pkg/logger"
)

// as a CLI application it has a very short lifecycle, so global flags are fine.

var dataDir = flag.String("data-dir", "", "Directory holding history.db (overrides ALLOCATOR_DATA_DIR)")

// openContainer loads configuration and wires the same services the server uses.
func openContainer() (*di.Container, error) {
	if *dataDir != "" {
		if err := os.Setenv("ALLOCATOR_DATA_DIR", *dataDir); err != nil {
			return nil, fmt.Errorf("failed to set data directory: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	container, _, err := di.Wire(cfg, log, nil)
	if err != nil {
		return nil, err
	}
	return container, nil
}
