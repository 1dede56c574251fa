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
	DataDir  string // Base directory for the risk database and state snapshots
	Port     int
	LogLevel string
	DevMode  bool

	// Collaborator endpoints
	PortfolioServiceURL string // Portfolio provider base URL
	TradingServiceURL   string // Trading controller base URL

	// Monitoring cadence
	MonitorInterval    time.Duration // Tick interval of the monitoring loop
	OptimizeEveryTicks int           // Threshold optimization cadence, in ticks
	MonteCarloTrials   int           // Trials per VaR computation

	// History capacities (bounded buffers)
	MetricsHistorySize int
	AlertHistorySize   int
	StressHistorySize  int

	// Backup (S3-compatible object storage, optional)
	Backup BackupConfig
}

// BackupConfig holds object-storage backup configuration. Backups are
// disabled unless a bucket is configured.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, MinIO); empty = AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string // cron spec
	Retain          int    // number of backups to keep
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BASTION_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("BASTION_PORT", 8010),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		PortfolioServiceURL: getEnv("PORTFOLIO_SERVICE_URL", "http://localhost:8000"),
		TradingServiceURL:   getEnv("TRADING_SERVICE_URL", "http://localhost:8000"),
		MonitorInterval:     getEnvAsDuration("MONITOR_INTERVAL", 5*time.Second),
		OptimizeEveryTicks:  getEnvAsInt("OPTIMIZE_EVERY_TICKS", 720),
		MonteCarloTrials:    getEnvAsInt("MONTE_CARLO_TRIALS", 1000),
		MetricsHistorySize:  getEnvAsInt("METRICS_HISTORY_SIZE", 10000),
		AlertHistorySize:    getEnvAsInt("ALERT_HISTORY_SIZE", 1000),
		StressHistorySize:   getEnvAsInt("STRESS_HISTORY_SIZE", 500),
		Backup:              loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", c.MonitorInterval)
	}
	if c.MonteCarloTrials <= 0 {
		return fmt.Errorf("monte carlo trials must be positive, got %d", c.MonteCarloTrials)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backup enabled but no bucket configured")
	}
	return nil
}

func loadBackupConfig() BackupConfig {
	bucket := getEnv("BACKUP_S3_BUCKET", "")
	return BackupConfig{
		Enabled:         bucket != "",
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		Bucket:          bucket,
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
		Retain:          getEnvAsInt("BACKUP_RETAIN", 7),
	}
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
