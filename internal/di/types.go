// Package di provides dependency injection wiring shared by the binaries.
package di

import (
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/allocation"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
)

// Container holds all dependencies for the application.
//
// It is created by Wire and is the single source of truth for service
// instances; handlers and the CLI read from it.
type Container struct {
	HistoryDB *database.DB

	HistoryStore  *historical.HistoryDB
	PriceProvider *historical.PriceProvider

	Optimizer         *optimization.MVOptimizer
	AllocationService *allocation.Service

	// BackupService is nil unless a backup bucket is configured
	BackupService *reliability.BackupService
}

// JobInstances holds the background jobs created during wiring
type JobInstances struct {
	PriceRetention     *historical.RetentionJob
	CheckWALCheckpoint *scheduler.CheckWALCheckpointsJob
	Vacuum             *reliability.VacuumJob
	HistoryBackup      *reliability.BackupJob // nil when backups are disabled
}

// Close releases the container's databases.
func (c *Container) Close() error {
	if c == nil || c.HistoryDB == nil {
		return nil
	}
	return c.HistoryDB.Close()
}
