package di

import (
	"context"
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/allocation"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates the price store, optimizer and allocation
// service on top of the opened databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.HistoryStore = historical.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.PriceProvider = historical.NewPriceProvider(container.HistoryStore, log)

	settings := optimization.DefaultSQPSettings()
	settings.MaxIterations = cfg.Solver.MaxIterations
	settings.Tolerance = cfg.Solver.Tolerance
	container.Optimizer = optimization.NewMVOptimizer(
		optimization.NewSQPSolver(settings),
		optimization.Options{Timeout: cfg.Solver.Timeout},
	)

	container.AllocationService = allocation.NewService(
		container.PriceProvider,
		container.Optimizer,
		allocation.Config{
			RetryRelaxed: cfg.Allocation.RetryRelaxed,
			Parallelism:  cfg.Allocation.BatchParallelism,
		},
		log,
	)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Store(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(store, cfg.DataDir, log, container.HistoryDB)
	}

	log.Info().
		Bool("backups", container.BackupService != nil).
		Int("max_iterations", settings.MaxIterations).
		Float64("tolerance", settings.Tolerance).
		Dur("timeout", cfg.Solver.Timeout).
		Msg("Services initialized")

	return nil
}
