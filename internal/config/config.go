// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool
	Solver   SolverConfig
	// Allocation controls the request pipeline around the optimizer.
	Allocation AllocationConfig
	// PriceRetention is how long stored prices are kept.
	PriceRetention time.Duration
	Backup         BackupConfig
}

// BackupConfig holds off-site backup settings. Backups are disabled unless a
// bucket is configured.
type BackupConfig struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether backups should be scheduled
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// SolverConfig holds optimizer settings
type SolverConfig struct {
	MaxIterations int
	Tolerance     float64
	Timeout       time.Duration // 0 disables the per-solve deadline
}

// AllocationConfig holds allocation service settings
type AllocationConfig struct {
	RetryRelaxed     bool
	BatchParallelism int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Solver: SolverConfig{
			MaxIterations: getEnvAsInt("SOLVER_MAX_ITERATIONS", 200),
			Tolerance:     getEnvAsFloat("SOLVER_TOLERANCE", 1e-6),
			Timeout:       getEnvAsDuration("SOLVER_TIMEOUT", 5*time.Second),
		},
		Allocation: AllocationConfig{
			RetryRelaxed:     getEnvAsBool("ALLOCATION_RETRY_RELAXED", false),
			BatchParallelism: getEnvAsInt("ALLOCATION_BATCH_PARALLELISM", 4),
		},
		PriceRetention: getEnvAsDuration("PRICE_RETENTION", 2*365*24*time.Hour),
		Backup: BackupConfig{
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be positive, got %d", c.Solver.MaxIterations)
	}
	if !(c.Solver.Tolerance > 0 && c.Solver.Tolerance <= 1e-2) {
		return fmt.Errorf("SOLVER_TOLERANCE must be in (0, 1e-2], got %g", c.Solver.Tolerance)
	}
	if c.Solver.Timeout < 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must not be negative, got %s", c.Solver.Timeout)
	}
	if c.Allocation.BatchParallelism < 1 {
		return fmt.Errorf("ALLOCATION_BATCH_PARALLELISM must be at least 1, got %d", c.Allocation.BatchParallelism)
	}
	if c.PriceRetention <= 0 {
		return fmt.Errorf("PRICE_RETENTION must be positive, got %s", c.PriceRetention)
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative, got %d", c.Backup.RetentionDays)
	}
	if (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
		return fmt.Errorf("BACKUP_S3_ACCESS_KEY_ID and BACKUP_S3_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
