package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RelayStore  RelayStoreConfig  `yaml:"relay_store"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Schedule    EvaluatorConfig   `yaml:"schedule"`
	Overtime    EvaluatorConfig   `yaml:"overtime"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	CSRFToken       string  `yaml:"csrf_token"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite or postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RelayStoreConfig selects and configures the shared relay-state store.
type RelayStoreConfig struct {
	Backend             string        `yaml:"backend"` // memory or firebase
	DatabaseURL         string        `yaml:"database_url"`
	CredentialsFile     string        `yaml:"credentials_file"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
}

// CoordinatorConfig holds manual-mode settings.
type CoordinatorConfig struct {
	ManualTimeoutMinutes int           `yaml:"manual_timeout_minutes"`
	ManualTimeout        time.Duration `yaml:"-"`
}

// EvaluatorConfig holds the polling settings shared by both evaluators.
type EvaluatorConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	Timezone        string        `yaml:"timezone"`
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

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "relayd.db"
	}

	if cfg.RelayStore.Backend == "" {
		cfg.RelayStore.Backend = "memory"
	}
	if cfg.RelayStore.PollIntervalSeconds <= 0 {
		cfg.RelayStore.PollIntervalSeconds = 2
	}
	cfg.RelayStore.PollInterval = time.Duration(cfg.RelayStore.PollIntervalSeconds) * time.Second

	if cfg.Coordinator.ManualTimeoutMinutes <= 0 {
		cfg.Coordinator.ManualTimeoutMinutes = 10
	}
	cfg.Coordinator.ManualTimeout = time.Duration(cfg.Coordinator.ManualTimeoutMinutes) * time.Minute

	if cfg.Schedule.IntervalSeconds <= 0 {
		cfg.Schedule.IntervalSeconds = 60
	}
	cfg.Schedule.Interval = time.Duration(cfg.Schedule.IntervalSeconds) * time.Second
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Asia/Jakarta"
	}

	if cfg.Overtime.IntervalSeconds <= 0 {
		cfg.Overtime.IntervalSeconds = 5
	}
	cfg.Overtime.Interval = time.Duration(cfg.Overtime.IntervalSeconds) * time.Second
	if cfg.Overtime.Timezone == "" {
		cfg.Overtime.Timezone = cfg.Schedule.Timezone
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
