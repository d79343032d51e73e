package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// StorageBackend selects the key-value store implementation.
type StorageBackend string

const (
	BackendMemory   StorageBackend = "memory"
	BackendRedis    StorageBackend = "redis"
	BackendPostgres StorageBackend = "postgres"
	BackendSQLite   StorageBackend = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Storage backend selection and per-backend settings
	Storage StorageConfig

	// Engagement engine tuning
	Engine EngineConfig

	// Background task execution
	Tasks TasksConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Admin surface
	Admin AdminConfig

	// Feature Flags
	Features *FeatureFlags

	// Observability
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	// Backend is one of memory, redis, postgres, sqlite.
	Backend StorageBackend

	Postgres PostgresConfig
	Redis    RedisConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Connection pool settings
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SQLiteConfig holds embedded SQLite settings.
type SQLiteConfig struct {
	// Path to the database file.
	Path string
}

// EngineConfig holds engagement engine tuning knobs.
type EngineConfig struct {
	// JourneyTTL is how long a journey record lives without an increment.
	JourneyTTL time.Duration

	// LeaderboardTTL is how long a cached leaderboard snapshot is served.
	LeaderboardTTL time.Duration

	// LeaderboardSize is how many entries a snapshot keeps.
	LeaderboardSize int

	// ListPageSize is the page size for store listings (sweeps, rebuilds).
	ListPageSize int

	// FlatAward is the points credited for every journey increment.
	FlatAward int64

	// BonusMin and BonusMax bound the journey rank bonus.
	BonusMin int
	BonusMax int
}

// TasksConfig holds worker pool settings for fire-and-forget tasks.
type TasksConfig struct {
	// Workers is the number of concurrent task slots.
	Workers int

	// Timeout bounds the execution time of a single task.
	Timeout time.Duration
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	// Enable/disable scheduler
	Enabled bool

	// Job intervals
	LeaderboardRefreshInterval time.Duration // rebuild cached snapshots
	LegacySweepInterval        time.Duration // migrate zero-padded keys
	ExpiryPurgeInterval        time.Duration // purge lapsed TTL rows

	// Per-job execution timeout
	JobTimeout time.Duration
}

// AdminConfig holds settings for the authority-checked admin surface.
type AdminConfig struct {
	// TokenHash is the bcrypt hash the presented authority token must
	// match. Empty disables all admin commands.
	TokenHash string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()
	cfg.Storage = loadStorageConfig()
	cfg.Engine = loadEngineConfig()
	cfg.Tasks = loadTasksConfig()
	cfg.Scheduler = loadSchedulerConfig()
	cfg.Admin = loadAdminConfig()
	cfg.Features = LoadFeatureFlags()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "canopy-engagement"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:  StorageBackend(strings.ToLower(getEnv("STORAGE_BACKEND", "memory"))),
		Postgres: loadPostgresConfig(),
		Redis:    loadRedisConfig(),
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "engagement.db"),
		},
	}
}

func loadPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		Database:        getEnv("DB_NAME", "canopy"),
		User:            getEnv("DB_USER", "canopy"),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		JourneyTTL:      getEnvDuration("ENGINE_JOURNEY_TTL", 48*time.Hour),
		LeaderboardTTL:  getEnvDuration("ENGINE_LEADERBOARD_TTL", 5*time.Minute),
		LeaderboardSize: getEnvInt("ENGINE_LEADERBOARD_SIZE", 10),
		ListPageSize:    getEnvInt("ENGINE_LIST_PAGE_SIZE", 1000),
		FlatAward:       int64(getEnvInt("ENGINE_FLAT_AWARD", 1)),
		BonusMin:        getEnvInt("ENGINE_BONUS_MIN", 1),
		BonusMax:        getEnvInt("ENGINE_BONUS_MAX", 10),
	}
}

func loadTasksConfig() TasksConfig {
	return TasksConfig{
		Workers: getEnvInt("TASKS_WORKERS", 4),
		Timeout: getEnvDuration("TASKS_TIMEOUT", 30*time.Second),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:                    getEnvBool("SCHEDULER_ENABLED", true),
		LeaderboardRefreshInterval: getEnvDuration("SCHEDULER_LEADERBOARD_INTERVAL", 5*time.Minute),
		LegacySweepInterval:        getEnvDuration("SCHEDULER_SWEEP_INTERVAL", 24*time.Hour),
		ExpiryPurgeInterval:        getEnvDuration("SCHEDULER_PURGE_INTERVAL", time.Hour),
		JobTimeout:                 getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
	}
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		TokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND must be one of memory, redis, postgres, sqlite (got %q)", c.Storage.Backend))
	}

	if c.Storage.Backend == BackendSQLite && c.Storage.SQLite.Path == "" {
		errs = append(errs, "SQLITE_PATH is required for the sqlite backend")
	}

	// The in-memory backend loses state on restart; refuse it in production.
	if c.App.Environment == EnvProduction && c.Storage.Backend == BackendMemory {
		errs = append(errs, "STORAGE_BACKEND=memory is not allowed in production")
	}

	if c.Engine.JourneyTTL <= 0 {
		errs = append(errs, "ENGINE_JOURNEY_TTL must be positive")
	}
	if c.Engine.LeaderboardSize <= 0 {
		errs = append(errs, "ENGINE_LEADERBOARD_SIZE must be positive")
	}
	if c.Engine.BonusMin > c.Engine.BonusMax {
		errs = append(errs, "ENGINE_BONUS_MIN must not exceed ENGINE_BONUS_MAX")
	}

	if c.Tasks.Workers <= 0 {
		errs = append(errs, "TASKS_WORKERS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
