package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules
const (
	PriceRetentionSchedule     = "@daily"
	CheckWALCheckpointSchedule = "@hourly"
	VacuumSchedule             = "0 0 4 * * 0" // Sunday 4 AM
	HistoryBackupSchedule      = "0 0 3 * * *" // 3 AM every day
)

// RegisterJobs creates the maintenance jobs and adds them to sched. A nil
// scheduler only creates the jobs.
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	retention := historical.NewRetentionJob(container.HistoryStore, cfg.PriceRetention)
	retention.SetLogger(log)

	walCheck := scheduler.NewCheckWALCheckpointsJob(container.HistoryDB)
	walCheck.SetLogger(log)

	vacuum := reliability.NewVacuumJob(container.HistoryDB)
	vacuum.SetLogger(log)

	jobs := &JobInstances{
		PriceRetention:     retention,
		CheckWALCheckpoint: walCheck,
		Vacuum:             vacuum,
	}
	if container.BackupService != nil {
		jobs.HistoryBackup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays)
		jobs.HistoryBackup.SetLogger(log)
	}
	if sched == nil {
		return jobs, nil
	}

	if err := sched.AddJob(PriceRetentionSchedule, retention); err != nil {
		return nil, fmt.Errorf("failed to schedule price retention: %w", err)
	}
	if err := sched.AddJob(CheckWALCheckpointSchedule, walCheck); err != nil {
		return nil, fmt.Errorf("failed to schedule WAL checkpoint check: %w", err)
	}
	if err := sched.AddJob(VacuumSchedule, vacuum); err != nil {
		return nil, fmt.Errorf("failed to schedule vacuum: %w", err)
	}
	if jobs.HistoryBackup != nil {
		if err := sched.AddJob(HistoryBackupSchedule, jobs.HistoryBackup); err != nil {
			return nil, fmt.Errorf("failed to schedule history backup: %w", err)
		}
	}

	return jobs, nil
}
