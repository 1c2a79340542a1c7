package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"derby-scoring-system/services"
)

// Config is the full configuration of the scoring server.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Database  DatabaseConfig         `yaml:"database"`
	Scheduler SchedulerConfig        `yaml:"scheduler"`
	Betting   services.BettingConfig `yaml:"betting"`
	Payouts   services.PayoutRates   `yaml:"payouts"`
}

// ServerConfig covers both listeners: the fiber API and the websocket hub.
type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	SyncAddr       string `yaml:"sync_addr"`
	AllowedOrigins string `yaml:"allowed_origins"`
	// Rate limit applied to the polling fallback endpoints.
	PollRateMax           int `yaml:"poll_rate_max"`
	PollRateWindowSeconds int `yaml:"poll_rate_window_seconds"`
}

// DatabaseConfig holds the postgres connection string.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig controls the reconciliation loop.
type SchedulerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Load reads the YAML config file and the .env file if present. A missing
// config file is not an error: env overrides plus defaults are enough to
// boot a development server.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ReconcileInterval returns the scheduler tick as a time.Duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// PollRateWindow returns the rate-limit window for the sync endpoints.
func (c *Config) PollRateWindow() time.Duration {
	return time.Duration(c.Server.PollRateWindowSeconds) * time.Second
}

// applyEnvOverrides lets deployment env vars win over the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.ListenAddr = ":" + v
	}
	if v := os.Getenv("SYNC_PORT"); v != "" {
		cfg.Server.SyncAddr = ":" + v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("BETTING_BASE_URL"); v != "" {
		cfg.Betting.BaseURL = v
	}
	if v := os.Getenv("BETTING_USERNAME"); v != "" {
		cfg.Betting.Username = v
	}
	if v := os.Getenv("BETTING_PASSWORD"); v != "" {
		cfg.Betting.Password = v
	}
	if v := os.Getenv("BETTING_SOURCE_LABEL"); v != "" {
		cfg.Betting.SourceLabel = v
	}
}

// setDefaults fills in whatever the file and env left empty.
func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":5300"
	}
	if cfg.Server.SyncAddr == "" {
		cfg.Server.SyncAddr = ":5301"
	}
	if cfg.Server.AllowedOrigins == "" {
		cfg.Server.AllowedOrigins = "*"
	}
	if cfg.Server.PollRateMax <= 0 {
		cfg.Server.PollRateMax = 30
	}
	if cfg.Server.PollRateWindowSeconds <= 0 {
		cfg.Server.PollRateWindowSeconds = 10
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "host=localhost user=postgres password=postgres dbname=derby_scoring port=5432 sslmode=disable"
	}
	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 5
	}
	if cfg.Betting.SourceLabel == "" {
		cfg.Betting.SourceLabel = "external"
	}
	if cfg.Payouts == (services.PayoutRates{}) {
		cfg.Payouts = services.DefaultPayoutRates()
	}
}
