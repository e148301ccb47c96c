package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

const backupJobTimeout = 30 * time.Minute

// BackupJob uploads a fresh backup and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *BackupJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", "history_backup").Logger()
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "history_backup"
}

// Run executes the backup job. A failed rotation is logged but does not fail
// the job once the upload succeeded.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupJobTimeout)
	defer cancel()

	key, err := j.service.CreateAndUploadBackup(ctx)
	if err != nil {
		return err
	}

	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Str("archive", key).Msg("Backup rotation failed")
	}
	return nil
}

// VacuumJob reclaims space after old prices are pruned
type VacuumJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewVacuumJob creates a new vacuum job
func NewVacuumJob(databases ...*database.DB) *VacuumJob {
	return &VacuumJob{
		databases: databases,
		log:       zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *VacuumJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", "weekly_vacuum").Logger()
}

// Name returns the job name for scheduler
func (j *VacuumJob) Name() string {
	return "weekly_vacuum"
}

// Run vacuums every database. Failures are logged and the remaining
// databases are still processed.
func (j *VacuumJob) Run() error {
	startTime := time.Now()
	failed := 0

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			failed++
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Int("failed", failed).
		Msg("Weekly vacuum completed")

	if failed > 0 {
		return fmt.Errorf("vacuum failed for %d database(s)", failed)
	}
	return nil
}

func (j *VacuumJob) vacuumDatabase(db *database.DB) error {
	sizeBefore, err := sizeMB(db)
	if err != nil {
		return err
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	sizeAfter, err := sizeMB(db)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}

func sizeMB(db *database.DB) (float64, error) {
	var pageCount, pageSize int64
	if err := db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to read page_size: %w", err)
	}
	return float64(pageCount*pageSize) / 1024 / 1024, nil
}
