package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Invitation InvitationConfig `yaml:"invitation"`
	Mail       MailConfig       `yaml:"mail"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	CORS       CORSConfig       `yaml:"cors"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"` // default: [] (same-origin only when empty; ["*"] for dev)
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // mongo | postgres | memory
	URL    string `yaml:"url"`
	// Name is the Mongo database name.
	Name string `yaml:"name"`
	// Transactions enables Mongo multi-document transactions (replica set only).
	Transactions bool `yaml:"transactions"`
}

type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	CookieSecure  bool          `yaml:"cookie_secure"`
}

type InvitationConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	FrontendOrigin string        `yaml:"frontend_origin"`
}

type MailConfig struct {
	// Driver is "smtp" or "log". The log driver writes messages to the logger.
	Driver   string        `yaml:"driver"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

type RateLimitConfig struct {
	Default int           `yaml:"default"`
	Window  time.Duration `yaml:"window"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
	// File, when set, also writes logs to a rotating file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverMongo,
			URL:    "mongodb://localhost:27017",
			Name:   "taskara",
		},
		Auth: AuthConfig{
			AccessTTL:    time.Hour,
			RefreshTTL:   10 * 24 * time.Hour,
			CookieSecure: true,
		},
		Invitation: InvitationConfig{
			TTL:            7 * 24 * time.Hour,
			FrontendOrigin: "http://localhost:5173",
		},
		Mail: MailConfig{
			Driver:  "log",
			Port:    587,
			Timeout: 10 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 3,
				Cooldown:    30 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			Default: 60,
			Window:  time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("TASKARA_HOST", &cfg.Server.Host)
	if v := os.Getenv("TASKARA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	str("TASKARA_DATABASE_DRIVER", &cfg.Database.Driver)
	str("TASKARA_DATABASE_URL", &cfg.Database.URL)
	str("TASKARA_DATABASE_NAME", &cfg.Database.Name)
	str("TASKARA_ACCESS_TOKEN_SECRET", &cfg.Auth.AccessSecret)
	str("TASKARA_REFRESH_TOKEN_SECRET", &cfg.Auth.RefreshSecret)
	str("TASKARA_FRONTEND_ORIGIN", &cfg.Invitation.FrontendOrigin)
	str("TASKARA_SMTP_HOST", &cfg.Mail.Host)
	str("TASKARA_SMTP_USERNAME", &cfg.Mail.Username)
	str("TASKARA_SMTP_PASSWORD", &cfg.Mail.Password)
	str("TASKARA_MAIL_FROM", &cfg.Mail.From)
	str("TASKARA_LOG_LEVEL", &cfg.Logging.Level)
}

// Validate reports configuration that would fail at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	switch c.Database.Driver {
	case DriverMongo, DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be one of mongo, postgres, memory", c.Database.Driver))
	}
	if c.Database.Driver == DriverMongo && c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required for mongo"))
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		errs = append(errs, errors.New("auth.access_secret and auth.refresh_secret are required"))
	} else if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth.access_secret and auth.refresh_secret must differ"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth token ttls must be positive"))
	}
	if c.Invitation.TTL <= 0 {
		errs = append(errs, errors.New("invitation.ttl must be positive"))
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			errs = append(errs, errors.New("mail.host and mail.from are required for smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.driver %q must be smtp or log", c.Mail.Driver))
	}
	if c.RateLimit.Default <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.default and rate_limit.window must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) MigrationsSource() string {
	return "file://migrations"
}

func (c *Config) DatabaseURLForMigrate() string {
	url := c.Database.URL
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}
