package historical

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetention keeps two years of prices: the longest window plus margin.
const DefaultRetention = 2 * 365 * 24 * time.Hour

// RetentionJob deletes stored prices older than the retention horizon
type RetentionJob struct {
	history *HistoryDB
	horizon time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewRetentionJob creates a retention job. A non-positive horizon uses DefaultRetention.
func NewRetentionJob(history *HistoryDB, horizon time.Duration) *RetentionJob {
	if horizon <= 0 {
		horizon = DefaultRetention
	}
	return &RetentionJob{
		history: history,
		horizon: horizon,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *RetentionJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "price_retention"
}

// Run deletes prices dated before now minus the horizon
func (j *RetentionJob) Run() error {
	cutoff := j.now().Add(-j.horizon)

	deleted, err := j.history.DeletePricesBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to apply price retention: %w", err)
	}

	j.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Price retention completed")

	return nil
}
