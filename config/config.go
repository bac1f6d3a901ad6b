package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"farm-telemetry-backend/internal/sensor"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Inference  InferenceConfig  `yaml:"inference"`
	Export     ExportConfig     `yaml:"export"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"` // negative disables caching
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with postgres:// or containing host= selects postgres, anything else sqlite.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// TelemetryConfig describes the upstream realtime database.
type TelemetryConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	BaseURL                  string        `yaml:"base_url"`
	HistoryPath              string        `yaml:"history_path"`
	AggregatePath            string        `yaml:"aggregate_path"`
	Auth                     string        `yaml:"auth"`
	TimeoutSeconds           int           `yaml:"timeout_seconds"`
	Timeout                  time.Duration `yaml:"-"`
	IntervalSeconds          int           `yaml:"interval_seconds"`
	Interval                 time.Duration `yaml:"-"`
	AggregateIntervalSeconds int           `yaml:"aggregate_interval_seconds"`
	AggregateInterval        time.Duration `yaml:"-"` // zero means fetch once at startup
	Timezone                 string        `yaml:"timezone"`
	Sensors                  []string      `yaml:"sensors"` // raw partition names to poll
}

// RealtimeConfig enables the MQTT snapshot subscription.
type RealtimeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// InferenceConfig points at the disease-information service.
type InferenceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// ExportConfig holds history paging and notice settings.
type ExportConfig struct {
	PageSize      int           `yaml:"page_size"`
	NoticeSeconds int           `yaml:"notice_seconds"`
	NoticeAfter   time.Duration `yaml:"-"`
}

// SensorOverride replaces parts of a built-in sensor definition.
type SensorOverride struct {
	Min  *float64 `yaml:"min"`
	Max  *float64 `yaml:"max"`
	Low  *float64 `yaml:"low"`
	High *float64 `yaml:"high"`
}

// SensorsConfig extends the built-in sensor catalog.
type SensorsConfig struct {
	Aliases   map[string]string         `yaml:"aliases"`
	Overrides map[string]SensorOverride `yaml:"overrides"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds == 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:farm.db?_foreign_keys=on"
	}

	if cfg.Telemetry.HistoryPath == "" {
		cfg.Telemetry.HistoryPath = "sensors"
	}
	if cfg.Telemetry.AggregatePath == "" {
		cfg.Telemetry.AggregatePath = "sensors_all"
	}
	if cfg.Telemetry.TimeoutSeconds <= 0 {
		cfg.Telemetry.TimeoutSeconds = 10
	}
	cfg.Telemetry.Timeout = time.Duration(cfg.Telemetry.TimeoutSeconds) * time.Second
	if cfg.Telemetry.IntervalSeconds <= 0 {
		cfg.Telemetry.IntervalSeconds = 60
	}
	cfg.Telemetry.Interval = time.Duration(cfg.Telemetry.IntervalSeconds) * time.Second
	if cfg.Telemetry.AggregateIntervalSeconds > 0 {
		cfg.Telemetry.AggregateInterval = time.Duration(cfg.Telemetry.AggregateIntervalSeconds) * time.Second
	}
	if cfg.Telemetry.Timezone == "" {
		cfg.Telemetry.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(cfg.Telemetry.Timezone); err != nil {
		return fmt.Errorf("telemetry.timezone: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.BaseURL == "" {
		return fmt.Errorf("telemetry.base_url is required when telemetry is enabled")
	}

	if cfg.Realtime.TopicPrefix == "" {
		cfg.Realtime.TopicPrefix = "farm/sensors"
	}
	if cfg.Realtime.ClientID == "" {
		cfg.Realtime.ClientID = "farmd"
	}
	if cfg.Realtime.QoS > 2 {
		return fmt.Errorf("realtime.qos must be 0, 1 or 2")
	}
	if cfg.Realtime.Enabled && cfg.Realtime.Broker == "" {
		return fmt.Errorf("realtime.broker is required when realtime is enabled")
	}

	if cfg.Inference.TimeoutSeconds <= 0 {
		cfg.Inference.TimeoutSeconds = 5
	}
	cfg.Inference.Timeout = time.Duration(cfg.Inference.TimeoutSeconds) * time.Second

	if cfg.Export.PageSize <= 0 {
		cfg.Export.PageSize = 8
	}
	if cfg.Export.NoticeSeconds <= 0 {
		cfg.Export.NoticeSeconds = 4
	}
	cfg.Export.NoticeAfter = time.Duration(cfg.Export.NoticeSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	return nil
}

// Location returns the telemetry timezone. Load has already validated it.
func (t TelemetryConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Catalog applies the configured aliases and overrides to base.
func (s SensorsConfig) Catalog(base *sensor.Catalog) (*sensor.Catalog, error) {
	if len(s.Aliases) == 0 && len(s.Overrides) == 0 {
		return base, nil
	}
	overrides := make(map[string]sensor.Override, len(s.Overrides))
	for key, o := range s.Overrides {
		overrides[key] = sensor.Override{Min: o.Min, Max: o.Max, Low: o.Low, High: o.High}
	}
	c, err := base.WithOverrides(s.Aliases, overrides)
	if err != nil {
		return nil, fmt.Errorf("sensors: %w", err)
	}
	return c, nil
}
