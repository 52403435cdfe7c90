// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Site    SiteConfig    `mapstructure:"site"`
	Dedupe  DedupeConfig  `mapstructure:"dedupe"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig selects and configures the persistence backend.
type DBConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is the Postgres connection string or the SQLite file path.
	DSN string `mapstructure:"dsn"`
}

// CrawlerConfig governs pacing and run limits.
type CrawlerConfig struct {
	UnitDelay      time.Duration `mapstructure:"unit_delay"`
	DetailDelay    time.Duration `mapstructure:"detail_delay"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	TelemetryEvery int           `mapstructure:"telemetry_every"`
	MaxUnits       int           `mapstructure:"max_units"`
}

// SiteConfig identifies the target directory site.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// DedupeConfig tunes the duplicate-merge pass.
type DedupeConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// Load builds a Config from disk and environment. A .env file in the
// working directory is folded into the environment first, so deployments
// can keep the DSN out of the config file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "driving_schools.db")
	v.SetDefault("crawler.unit_delay", "1s")
	v.SetDefault("crawler.detail_delay", "500ms")
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.telemetry_every", 10)
	v.SetDefault("crawler.max_units", 0)
	v.SetDefault("site.base_url", "https://rijlessen.nl")
	v.SetDefault("site.user_agent", "")
	v.SetDefault("dedupe.threshold", 0.8)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Crawler.UnitDelay <= 0 || c.Crawler.DetailDelay <= 0 {
		return fmt.Errorf("crawler delays must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Dedupe.Threshold <= 0 || c.Dedupe.Threshold > 1 {
		return fmt.Errorf("dedupe.threshold must be in (0, 1]")
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
