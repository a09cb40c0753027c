package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration
type Config struct {
	TelegramToken  string
	DatabaseDriver string
	DatabasePath   string
	DatabaseURL    string
	SnapshotPath   string
	HTTPAddr       string
	APIToken       string
	ResendAPIKey   string
	EmailFrom      string
	ConfigFile     string

	Tracker TrackerConfig `toml:"tracker"`
	Bot     BotConfig     `toml:"bot"`
}

// TrackerConfig tunes the session timer and reconciliation
type TrackerConfig struct {
	TickInterval         Duration `toml:"tick_interval"`
	FlushEvery           int      `toml:"flush_every"`
	SnapshotMaxAge       Duration `toml:"snapshot_max_age"`
	ReconcileInterval    Duration `toml:"reconcile_interval"`
	ShutdownFlushTimeout Duration `toml:"shutdown_flush_timeout"`
}

// BotConfig holds chat presentation settings
type BotConfig struct {
	Timezone string `toml:"timezone"`

	Location *time.Location `toml:"-"`
}

// Duration is a time.Duration written as "90s" or "5m" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if v < 0 {
		return fmt.Errorf("duration %q must not be negative", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load loads configuration from environment variables and the optional TOML file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("DATABASE_PATH", "./treino_bot.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SnapshotPath:   getEnv("SNAPSHOT_PATH", "./treino_snapshots.json"),
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		APIToken:       os.Getenv("API_TOKEN"),
		ResendAPIKey:   os.Getenv("RESEND_API_KEY"),
		EmailFrom:      getEnv("EMAIL_FROM", "Treino Bot <treino@localhost>"),
		ConfigFile:     os.Getenv("CONFIG_FILE"),
	}

	if cfg.ConfigFile != "" {
		data, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.apply(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.SetDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes decodes a TOML document on top of an empty config and applies defaults
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := cfg.apply(data); err != nil {
		return nil, err
	}
	if err := cfg.SetDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(data []byte) error {
	var file struct {
		Tracker TrackerConfig `toml:"tracker"`
		Bot     BotConfig     `toml:"bot"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	c.Tracker = file.Tracker
	c.Bot = file.Bot
	return nil
}

// SetDefault fills unset tracker and bot values
func (c *Config) SetDefault() error {
	if c.Tracker.TickInterval.Duration == 0 {
		c.Tracker.TickInterval.Duration = time.Second
	}
	if c.Tracker.FlushEvery <= 0 {
		c.Tracker.FlushEvery = 10
	}
	if c.Tracker.SnapshotMaxAge.Duration == 0 {
		c.Tracker.SnapshotMaxAge.Duration = 24 * time.Hour
	}
	if c.Tracker.ReconcileInterval.Duration == 0 {
		c.Tracker.ReconcileInterval.Duration = time.Minute
	}
	if c.Tracker.ShutdownFlushTimeout.Duration == 0 {
		c.Tracker.ShutdownFlushTimeout.Duration = 5 * time.Second
	}

	if c.Bot.Timezone == "" {
		c.Bot.Timezone = "Local"
	}
	loc, err := time.LoadLocation(c.Bot.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Bot.Timezone, err)
	}
	c.Bot.Location = loc
	return nil
}

// DSN returns the data source for the configured driver
func (c *Config) DSN() string {
	if c.DatabaseDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
