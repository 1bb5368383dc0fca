package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	DB     DBConfig
	Server ServerConfig
	Auth   AuthConfig
	Media  MediaConfig
	Import ImportConfig
	Stats  StatsConfig
	Bot    BotConfig
	Log    LogConfig
}

// DBConfig holds database configuration
type DBConfig struct {
	Driver         string        `envconfig:"DB_DRIVER" default:"mysql"`
	Host           string        `envconfig:"DB_HOST" default:"localhost"`
	Port           int           `envconfig:"DB_PORT" default:"3306"`
	User           string        `envconfig:"DB_USER" default:"root"`
	Password       string        `envconfig:"DB_PASSWORD"`
	Database       string        `envconfig:"DB_NAME" default:"movieverse"`
	Path           string        `envconfig:"DB_PATH" default:"movieverse.db"`
	MaxConns       int           `envconfig:"DB_MAX_CONNS" default:"10"`
	ConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `envconfig:"SERVER_PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
	MaxUploadMB    int64    `envconfig:"SERVER_MAX_UPLOAD_MB" default:"2048"`
}

// AuthConfig holds admin authentication configuration
type AuthConfig struct {
	PasswordScheme string        `envconfig:"AUTH_PASSWORD_SCHEME" default:"plain"`
	SessionTTL     time.Duration `envconfig:"AUTH_SESSION_TTL" default:"12h"`
	AdminUsername  string        `envconfig:"ADMIN_USERNAME"`
	AdminPassword  string        `envconfig:"ADMIN_PASSWORD"`
}

// MediaConfig holds uploaded file storage configuration
type MediaConfig struct {
	Root string `envconfig:"MEDIA_ROOT" default:"movies"`
}

// ImportConfig holds metadata importer configuration
type ImportConfig struct {
	RateLimit  float64       `envconfig:"IMPORT_RATE_LIMIT" default:"1"`
	Timeout    time.Duration `envconfig:"IMPORT_TIMEOUT" default:"15s"`
	MaxRetries int           `envconfig:"IMPORT_MAX_RETRIES" default:"3"`
	UserAgent  string        `envconfig:"IMPORT_USER_AGENT" default:"MovieVerse/1.0"`
}

// StatsConfig holds the periodic stats refresher configuration
type StatsConfig struct {
	Enabled  bool          `envconfig:"STATS_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"STATS_INTERVAL" default:"1m"`
}

// BotConfig holds Telegram bot configuration; the bot is off without a token
type BotConfig struct {
	Token string `envconfig:"BOT_TOKEN"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// DSN returns the MySQL data source name
func (c *DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true&timeout=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.ConnectTimeout)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	sections := []struct {
		name   string
		target interface{}
	}{
		{"db", &cfg.DB},
		{"server", &cfg.Server},
		{"auth", &cfg.Auth},
		{"media", &cfg.Media},
		{"import", &cfg.Import},
		{"stats", &cfg.Stats},
		{"bot", &cfg.Bot},
		{"log", &cfg.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "mysql":
		if c.DB.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the mysql driver")
		}
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.DB.Driver)
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Auth.PasswordScheme != "plain" && c.Auth.PasswordScheme != "bcrypt" {
		return fmt.Errorf("AUTH_PASSWORD_SCHEME must be plain or bcrypt")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL must be positive")
	}
	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	if c.Import.RateLimit <= 0 {
		return fmt.Errorf("IMPORT_RATE_LIMIT must be positive")
	}
	if c.Stats.Enabled && c.Stats.Interval <= 0 {
		return fmt.Errorf("STATS_INTERVAL must be positive")
	}
	return nil
}
