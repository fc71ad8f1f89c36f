// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	DB        DBConfig        `mapstructure:"db"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Digest    DigestConfig    `mapstructure:"digest"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Timezone  string          `mapstructure:"timezone"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs the main polling cycle and side tasks.
type SchedulerConfig struct {
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
	JitterMinSeconds     int `mapstructure:"jitter_min_seconds"`
	JitterMaxSeconds     int `mapstructure:"jitter_max_seconds"`
	CacheRetentionDays   int `mapstructure:"cache_retention_days"`
	ExpirySweepSeconds   int `mapstructure:"expiry_sweep_seconds"`
	PoolCheckSeconds     int `mapstructure:"pool_check_seconds"`
	PauseResumeSeconds   int `mapstructure:"pause_resume_seconds"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	CategoryURL    string `mapstructure:"category_url"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	StepTimeoutSec int    `mapstructure:"step_timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ProbeConfig configures the static reachability probe.
type ProbeConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// DBConfig controls the Postgres connection pool.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// TelegramConfig holds notification sink credentials.
type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	APIBaseURL     string `mapstructure:"api_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DigestConfig tunes the hourly/daily digest dispatch tasks.
type DigestConfig struct {
	HourlyIntervalSeconds int `mapstructure:"hourly_interval_seconds"`
	DailyHour             int `mapstructure:"daily_hour"`
	DailyWindowMinutes    int `mapstructure:"daily_window_minutes"`
	BatchLimit            int `mapstructure:"batch_limit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALERTBOT")
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
	v.SetDefault("scheduler.check_interval_seconds", 300)
	v.SetDefault("scheduler.jitter_min_seconds", 2)
	v.SetDefault("scheduler.jitter_max_seconds", 5)
	v.SetDefault("scheduler.cache_retention_days", 14)
	v.SetDefault("scheduler.expiry_sweep_seconds", 86400)
	v.SetDefault("scheduler.pool_check_seconds", 300)
	v.SetDefault("scheduler.pause_resume_seconds", 86400)
	v.SetDefault("browser.category_url", "https://shop.amul.com/en/browse/protein")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.step_timeout_seconds", 30)
	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout_seconds", 15)
	// Registering empty defaults lets AutomaticEnv surface these keys
	// through Unmarshal even when no config file is present.
	v.SetDefault("db.dsn", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout_seconds", 10)
	v.SetDefault("digest.hourly_interval_seconds", 3600)
	v.SetDefault("digest.daily_hour", 8)
	v.SetDefault("digest.daily_window_minutes", 5)
	v.SetDefault("digest.batch_limit", 50)
	v.SetDefault("logging.development", true)
	v.SetDefault("timezone", "Asia/Kolkata")
}

// Validate enforces required values and reasonable limits. Interval
// sanity is intentionally left to the scheduler, which substitutes safe
// defaults instead of refusing to start.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Browser.CategoryURL == "" {
		return fmt.Errorf("browser.category_url is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
