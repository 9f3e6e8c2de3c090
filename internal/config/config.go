package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// CoordinatorConfig tunes the lock windows and the per-activity commit loop.
type CoordinatorConfig struct {
	ModifyLockWindowMinutes int `yaml:"modify_lock_window_minutes"`
	DeleteLockWindowMinutes int `yaml:"delete_lock_window_minutes"`
	MaxCommitAttempts       int `yaml:"max_commit_attempts"`
	AcquireTimeoutMs        int `yaml:"acquire_timeout_ms"`
	DefaultDurationMinutes  int `yaml:"default_duration_minutes"`
	ArchiveGraceHours       int `yaml:"archive_grace_hours"`
}

type NotifierConfig struct {
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`
}

// SportRadiusConfig overrides the search radius for one sport.
type SportRadiusConfig struct {
	RadiusKm   float64 `yaml:"radius_km"`
	ExpandedKm float64 `yaml:"expanded_km"`
}

type DiscoveryConfig struct {
	DefaultRadiusKm float64                      `yaml:"default_radius_km"`
	MaxRadiusKm     float64                      `yaml:"max_radius_km"`
	MinResults      int                          `yaml:"min_results"`
	Sports          map[string]SportRadiusConfig `yaml:"sports"`
}

type RateLimitConfig struct {
	ParticipationPerMinute int `yaml:"participation_per_minute"`
	Burst                  int `yaml:"burst"`
}

// SchedulerConfig contains cron schedule settings (with seconds field)
type SchedulerConfig struct {
	AdvanceLifecycle string `yaml:"advance_lifecycle"`
	ArchiveFinished  string `yaml:"archive_finished"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration and fills defaults for optional values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = DriverPostgres
		fallthrough
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Coordinator defaults
	co := &c.Coordinator
	if co.ModifyLockWindowMinutes <= 0 {
		co.ModifyLockWindowMinutes = 120
	}
	if co.DeleteLockWindowMinutes <= 0 {
		co.DeleteLockWindowMinutes = 240
	}
	if co.DeleteLockWindowMinutes < co.ModifyLockWindowMinutes {
		return fmt.Errorf("delete lock window (%dm) must not be shorter than modify lock window (%dm)",
			co.DeleteLockWindowMinutes, co.ModifyLockWindowMinutes)
	}
	if co.MaxCommitAttempts <= 0 {
		co.MaxCommitAttempts = 3
	}
	if co.AcquireTimeoutMs <= 0 {
		co.AcquireTimeoutMs = 5000
	}
	if co.DefaultDurationMinutes <= 0 {
		co.DefaultDurationMinutes = 90
	}
	if co.ArchiveGraceHours <= 0 {
		co.ArchiveGraceHours = 24
	}

	if c.Notifier.SubscriberQueueSize <= 0 {
		c.Notifier.SubscriberQueueSize = 64
	}

	// Discovery defaults
	d := &c.Discovery
	if d.DefaultRadiusKm <= 0 {
		d.DefaultRadiusKm = 5
	}
	if d.MaxRadiusKm <= 0 {
		d.MaxRadiusKm = 50
	}
	if d.DefaultRadiusKm > d.MaxRadiusKm {
		return fmt.Errorf("default radius %.1fkm exceeds max radius %.1fkm", d.DefaultRadiusKm, d.MaxRadiusKm)
	}
	if d.MinResults <= 0 {
		d.MinResults = 3
	}
	for sport, r := range d.Sports {
		if r.RadiusKm < 0 || r.ExpandedKm < 0 {
			return fmt.Errorf("negative radius for sport %q", sport)
		}
	}

	if c.RateLimit.ParticipationPerMinute <= 0 {
		c.RateLimit.ParticipationPerMinute = 30
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}

	// Scheduler defaults
	if c.Scheduler.AdvanceLifecycle == "" {
		c.Scheduler.AdvanceLifecycle = "0 * * * * *" // every minute
	}
	if c.Scheduler.ArchiveFinished == "" {
		c.Scheduler.ArchiveFinished = "0 0 3 * * *" // 3 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpiry) * time.Minute
}

func (c CoordinatorConfig) ModifyLockWindow() time.Duration {
	return time.Duration(c.ModifyLockWindowMinutes) * time.Minute
}

func (c CoordinatorConfig) DeleteLockWindow() time.Duration {
	return time.Duration(c.DeleteLockWindowMinutes) * time.Minute
}

func (c CoordinatorConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMs) * time.Millisecond
}

func (c CoordinatorConfig) ArchiveGrace() time.Duration {
	return time.Duration(c.ArchiveGraceHours) * time.Hour
}
