package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets can be supplied through the environment instead of
// the YAML file; see ApplyEnv.

// DatabaseConfig selects the database/sql driver and its DSN.
type DatabaseConfig struct {
	// Driver is "sqlite3" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// SyncConfig controls inbound calendar ingestion.
type SyncConfig struct {
	// Cron is a cron-style schedule string for periodic sync. Empty disables it.
	Cron string `yaml:"cron" json:"cron"`
	// Channels lists the inbound channels synced by the scheduler.
	Channels []string `yaml:"channels" json:"channels"`
	// FetchTimeoutSeconds bounds each feed download.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`
	// CacheDir stores ETag/Last-Modified metadata and bodies. Empty disables caching.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// RecurrenceHorizonDays is how far ahead recurring blocks are expanded.
	RecurrenceHorizonDays int `yaml:"recurrence_horizon_days" json:"recurrence_horizon_days"`
}

// MessagesConfig controls scheduled guest messaging.
type MessagesConfig struct {
	Cron              string `yaml:"cron" json:"cron"`
	DefaultLanguage   string `yaml:"default_language" json:"default_language"`
	DaysBeforeArrival int    `yaml:"days_before_arrival" json:"days_before_arrival"`
	// Variables are extra template values shared by every message, e.g.
	// directions or wifi.
	Variables map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// QueueConfig selects the notification queue backend.
type QueueConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend       string `yaml:"backend" json:"backend"`
	Workers       int    `yaml:"workers" json:"workers"`
	Buffer        int    `yaml:"buffer" json:"buffer"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisKey      string `yaml:"redis_key" json:"redis_key"`
}

type EmailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" json:"-"`
	// ChatID is the host's chat; guests are never messaged over Telegram directly.
	ChatID int64 `yaml:"chat_id" json:"chat_id"`
}

type WhatsAppConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// MinistryConfig holds the establishment identity used for guest registration.
type MinistryConfig struct {
	APIURL            string `yaml:"api_url" json:"api_url"`
	EstablishmentCode string `yaml:"establishment_code" json:"establishment_code"`
	CertPath          string `yaml:"cert_path" json:"cert_path"`
	KeyPath           string `yaml:"key_path" json:"key_path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// PublicURL is the externally reachable base URL, used to advertise
	// outbound feed URLs to Booking.com / Airbnb.
	PublicURL string `yaml:"public_url" json:"public_url"`

	// Timezone is the IANA timezone used for message dates and cron schedules.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is debug, info or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Messages MessagesConfig `yaml:"messages" json:"messages"`
	Queue    QueueConfig    `yaml:"queue" json:"queue"`
	Email    EmailConfig    `yaml:"email" json:"email"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	Ministry MinistryConfig `yaml:"ministry" json:"ministry"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health and the public calendar export.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://" + c.Listen
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Madrid"
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = "info"
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "file:./var/delfin.db?_foreign_keys=on"
	}

	if c.Sync.Cron == "" {
		c.Sync.Cron = "*/10 * * * *"
	}
	if len(c.Sync.Channels) == 0 {
		c.Sync.Channels = []string{"booking", "airbnb"}
	}
	if c.Sync.FetchTimeoutSeconds <= 0 {
		c.Sync.FetchTimeoutSeconds = 15
	}
	if c.Sync.RecurrenceHorizonDays <= 0 {
		c.Sync.RecurrenceHorizonDays = 365
	}

	if c.Messages.Cron == "" {
		c.Messages.Cron = "0 * * * *"
	}
	switch c.Messages.DefaultLanguage {
	case "es", "en":
	default:
		c.Messages.DefaultLanguage = "es"
	}
	if c.Messages.DaysBeforeArrival <= 0 {
		c.Messages.DaysBeforeArrival = 7
	}

	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		c.Queue.Backend = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 100
	}
	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = "localhost:6379"
	}
	if c.Queue.RedisKey == "" {
		c.Queue.RedisKey = "delfin:notifications"
	}

	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if c.WhatsApp.DataDir == "" {
		c.WhatsApp.DataDir = "./var/whatsapp"
	}
	if c.Ministry.APIURL == "" {
		c.Ministry.APIURL = "https://api.interior.gob.es/rede"
	}
}

// ApplyEnv overlays secrets and deployment-specific values from the
// environment. A .env file in envFile (if it exists) is loaded first; real
// environment variables win over it.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if v := os.Getenv("DELFIN_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DELFIN_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DELFIN_SMTP_PASSWORD"); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv("DELFIN_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("DELFIN_TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.New("DELFIN_TELEGRAM_CHAT_ID must be an integer")
		}
		c.Telegram.ChatID = id
	}
	if v := os.Getenv("DELFIN_REDIS_PASSWORD"); v != "" {
		c.Queue.RedisPassword = v
	}
	if v := os.Getenv("DELFIN_ESTABLISHMENT_CODE"); v != "" {
		c.Ministry.EstablishmentCode = v
	}
	if v := os.Getenv("DELFIN_BASIC_AUTH_PASSWORD"); v != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{Username: "admin"}
		}
		c.BasicAuth.Password = v
	}

	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".delfin-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
