package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Sync      SyncConfig
	Ledger    LedgerConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type SchedulerConfig struct {
	Enabled      bool
	Schedule     string // cron spec, five fields
	WorkerCount  int
	JobDelay     time.Duration
	JobTimeout   time.Duration
	QueueSize    int
	RunOnStartup bool
}

type SyncConfig struct {
	BulkInsertRetries   int
	RetryDelay          time.Duration
	MerchantConcurrency int
}

type LedgerConfig struct {
	DefaultLookbackDays int
	MaxLookbackDays     int
	MinBackfillDays     int
	GapFillLookbackDays int
	BackfillCaller      string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string // empty serves /metrics on the API port
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads the configuration from the environment. Values from an
// optional .env file (ENV_FILE, default ".env") fill in variables that are
// not already set.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	var errs []error
	intEnv := func(key string, def int) int {
		v, err := getIntEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := getDurationEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  durationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: durationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            intEnv("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "bankledger"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    intEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: durationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Migrate:         getBoolEnv("DB_MIGRATE", true),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getBoolEnv("SCHEDULER_ENABLED", true),
			Schedule:     getEnv("SCHEDULER_CRON", "0 4 * * *"),
			WorkerCount:  intEnv("SCHEDULER_WORKERS", 5),
			JobDelay:     durationEnv("SCHEDULER_JOB_DELAY", 100*time.Millisecond),
			JobTimeout:   durationEnv("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
			QueueSize:    intEnv("SCHEDULER_QUEUE_SIZE", 100),
			RunOnStartup: getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		Sync: SyncConfig{
			BulkInsertRetries:   intEnv("SYNC_BULK_INSERT_RETRIES", 3),
			RetryDelay:          durationEnv("SYNC_RETRY_DELAY", 200*time.Millisecond),
			MerchantConcurrency: intEnv("SYNC_MERCHANT_CONCURRENCY", 4),
		},
		Ledger: LedgerConfig{
			DefaultLookbackDays: intEnv("LEDGER_DEFAULT_LOOKBACK_DAYS", 42),
			MaxLookbackDays:     intEnv("LEDGER_MAX_LOOKBACK_DAYS", 90),
			MinBackfillDays:     intEnv("LEDGER_MIN_BACKFILL_DAYS", 2),
			GapFillLookbackDays: intEnv("LEDGER_GAP_FILL_LOOKBACK_DAYS", 31),
			BackfillCaller:      getEnv("LEDGER_BACKFILL_CALLER", "scheduled-backfill"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "bankledger-api"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBoolEnv("LOG_PRETTY", false),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid SCHEDULER_CRON %q: %w", c.Scheduler.Schedule, err)
		}
		if c.Scheduler.WorkerCount < 1 {
			return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
		}
	}
	if c.Sync.BulkInsertRetries < 0 {
		return fmt.Errorf("SYNC_BULK_INSERT_RETRIES must not be negative")
	}
	if c.Sync.MerchantConcurrency < 1 {
		return fmt.Errorf("SYNC_MERCHANT_CONCURRENCY must be at least 1")
	}
	if c.Ledger.DefaultLookbackDays < 1 || c.Ledger.MaxLookbackDays < 1 {
		return fmt.Errorf("ledger lookback days must be positive")
	}
	if c.Ledger.DefaultLookbackDays > c.Ledger.MaxLookbackDays {
		return fmt.Errorf("LEDGER_DEFAULT_LOOKBACK_DAYS (%d) exceeds LEDGER_MAX_LOOKBACK_DAYS (%d)",
			c.Ledger.DefaultLookbackDays, c.Ledger.MaxLookbackDays)
	}
	if c.Ledger.GapFillLookbackDays < 1 {
		return fmt.Errorf("LEDGER_GAP_FILL_LOOKBACK_DAYS must be at least 1")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// loadDotEnv applies the file if it exists. Variables already in the
// environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
