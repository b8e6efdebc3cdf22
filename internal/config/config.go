package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the innov8 pipeline.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Universe UniverseConfig `yaml:"universe"`
	Sync     SyncConfig     `yaml:"sync"`
	Forecast ForecastConfig `yaml:"forecast"`
	Refresh  RefreshConfig  `yaml:"refresh"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	// SignalFile is the zero-byte marker written after a full refresh.
	SignalFile string `yaml:"signal_file"`
}

// Server holds network listener configuration.
type Server struct {
	Addr string `yaml:"addr"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey          string        `yaml:"api_key"`
	APISecret       string        `yaml:"api_secret"`
	BaseURL         string        `yaml:"base_url"`
	DataURL         string        `yaml:"data_url"`
	Feed            string        `yaml:"feed"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UniverseConfig controls how the ticker universe is resolved.
type UniverseConfig struct {
	ScrapeURL     string        `yaml:"scrape_url"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout"`
	// FallbackFile overrides the bundled symbol list when set.
	FallbackFile string `yaml:"fallback_file"`
	// ReferenceDir may hold a sectors.csv overriding the bundled one.
	ReferenceDir string `yaml:"reference_dir"`
}

// SyncConfig holds OHLC synchronization parameters.
type SyncConfig struct {
	LookbackDays int    `yaml:"lookback_days"`
	Timezone     string `yaml:"timezone"`
	// Workers bounds concurrent per-symbol provider calls.
	Workers int `yaml:"workers"`
}

// ForecastConfig holds forecast engine parameters.
type ForecastConfig struct {
	// Horizon is the number of business days forecast. The drift-clipping
	// window stays at five moves regardless.
	Horizon int `yaml:"horizon"`
}

// RefreshConfig holds the scheduled full-refresh parameters.
type RefreshConfig struct {
	// Schedule is a six-field cron expression (with seconds). Empty disables
	// scheduled refreshes.
	Schedule string `yaml:"schedule"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/stonks.db",
			SignalFile: "data/update_signal",
		},
		Server: Server{Addr: ":8050"},
		Alpaca: Alpaca{
			BaseURL:         "https://api.alpaca.markets",
			Feed:            "iex",
			Timeout:         30 * time.Second,
			RateLimitPerMin: 180,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Universe: UniverseConfig{
			ScrapeURL:     "https://www.slickcharts.com/sp500",
			ScrapeTimeout: 120 * time.Second,
		},
		Sync:     SyncConfig{LookbackDays: 365, Timezone: "America/New_York", Workers: 4},
		Forecast: ForecastConfig{Horizon: 5},
		Refresh:  RefreshConfig{Schedule: "0 30 21 * * 1-5"},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults, and then applies environment variable overrides. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Path returns the config file path, honoring INNOV8_CONFIG.
func Path() string {
	if p := os.Getenv("INNOV8_CONFIG"); p != "" {
		return p
	}
	return "config/innov8.yaml"
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("FORECAST_HORIZON"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Forecast.Horizon = n
		}
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
