package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Feeding      FeedingConfig      `yaml:"feeding"`
	Device       DeviceConfig       `yaml:"device"`
	WaterQuality WaterQualityConfig `yaml:"water_quality"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	Access       AccessConfig       `yaml:"access"`
	Log          LogConfig          `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// IdentityHeader carries the caller ID set by the upstream identity provider.
	IdentityHeader string `yaml:"identity_header"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SchedulerConfig controls the automatic feeding job.
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	Timezone        string        `yaml:"timezone"`
}

// FeedingConfig describes a single feed command.
type FeedingConfig struct {
	Portion           int           `yaml:"portion"`
	DurationSeconds   float64       `yaml:"duration_seconds"`
	AckTimeoutSeconds int           `yaml:"ack_timeout_seconds"`
	AckTimeout        time.Duration `yaml:"-"`
}

// DeviceConfig holds the device socket settings.
type DeviceConfig struct {
	PingIntervalSeconds int    `yaml:"ping_interval_seconds"`
	PongTimeoutSeconds  int    `yaml:"pong_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	MaxMessageSize      int64  `yaml:"max_message_size"`
	SyncCommand         string `yaml:"sync_command"` // "toggle" or "status_update"
}

// WaterQualityConfig holds the thresholds that raise a water quality notification.
// A zero bound is not checked.
type WaterQualityConfig struct {
	PHMin          float64 `yaml:"ph_min"`
	PHMax          float64 `yaml:"ph_max"`
	TemperatureMin float64 `yaml:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max"`
	OxygenMin      float64 `yaml:"oxygen_min"`
}

// AccessConfig configures the permission checker.
type AccessConfig struct {
	AllowAll bool                `yaml:"allow_all"`
	Grants   map[string][]string `yaml:"grants"` // caller ID -> permission names
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default and derives the durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	if cfg.Server.IdentityHeader == "" {
		cfg.Server.IdentityHeader = "X-User-ID"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 60
	}
	cfg.Scheduler.Interval = time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}

	if cfg.Feeding.Portion <= 0 {
		cfg.Feeding.Portion = 1
	}
	if cfg.Feeding.DurationSeconds <= 0 {
		cfg.Feeding.DurationSeconds = 2
	}
	if cfg.Feeding.AckTimeoutSeconds < 0 {
		cfg.Feeding.AckTimeoutSeconds = 0
	}
	cfg.Feeding.AckTimeout = time.Duration(cfg.Feeding.AckTimeoutSeconds) * time.Second

	if cfg.Device.PingIntervalSeconds <= 0 {
		cfg.Device.PingIntervalSeconds = 30
	}
	if cfg.Device.PongTimeoutSeconds <= 0 {
		cfg.Device.PongTimeoutSeconds = 10
	}
	if cfg.Device.WriteTimeoutSeconds <= 0 {
		cfg.Device.WriteTimeoutSeconds = 5
	}
	if cfg.Device.MaxMessageSize <= 0 {
		cfg.Device.MaxMessageSize = 4096
	}
	if cfg.Device.SyncCommand == "" {
		cfg.Device.SyncCommand = "toggle"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Info().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
