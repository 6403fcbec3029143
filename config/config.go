package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/notification-dispatch/internal/email"
	"github.com/jwalitptl/notification-dispatch/pkg/messaging/redis"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "NOTIFY"

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// BaseURL is the web app origin; reminder links are relative to it.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string        `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required_if=Driver postgres"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path" validate:"required_if=Driver sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// Migrate applies the schema on startup.
	Migrate bool `mapstructure:"migrate"`
}

type RedisConfig struct {
	// URL is optional; without it notification events are not published.
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type PushConfig struct {
	VAPIDPublicKey    string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey   string        `mapstructure:"vapid_private_key"`
	Subject           string        `mapstructure:"subject" validate:"omitempty,startswith=mailto:|startswith=https:"`
	TTL               time.Duration `mapstructure:"ttl"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"min=0"`
	Icon              string        `mapstructure:"icon"`
}

type EmailConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from" validate:"required_with=Host"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ScanConfig struct {
	Timezone string `mapstructure:"timezone" validate:"required"`
	// RunAt is the local time of day, HH:MM, at which the worker scans.
	RunAt       string `mapstructure:"run_at" validate:"datetime=15:04"`
	HorizonDays int    `mapstructure:"horizon_days" validate:"min=7"`
	Concurrency int    `mapstructure:"concurrency" validate:"min=1"`
}

type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	CronSecret string `mapstructure:"cron_secret"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Push      PushConfig      `mapstructure:"push"`
	Email     EmailConfig     `mapstructure:"email"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// secrets read from the environment (or .env) win over the config file.
type secrets struct {
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	VAPIDPublicKey   string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey  string `envconfig:"VAPID_PRIVATE_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	CronSecret       string `envconfig:"CRON_SECRET"`
	RedisURL         string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("push.ttl", 24*time.Hour)
	v.SetDefault("push.timeout", 10*time.Second)

	v.SetDefault("email.port", 587)
	v.SetDefault("email.timeout", 10*time.Second)

	v.SetDefault("scan.timezone", "UTC")
	v.SetDefault("scan.run_at", "07:00")
	v.SetDefault("scan.horizon_days", 7)
	v.SetDefault("scan.concurrency", 8)

	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
}

// Load reads path, or config.yml from the usual locations when path is
// empty, then overlays NOTIFY_* environment variables. A missing config
// file is fine when path is empty; defaults and the environment apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var s secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	overlay(&c.Database.Password, s.DatabasePassword)
	overlay(&c.Database.Host, s.DatabaseHost)
	overlay(&c.Push.VAPIDPublicKey, s.VAPIDPublicKey)
	overlay(&c.Push.VAPIDPrivateKey, s.VAPIDPrivateKey)
	overlay(&c.Email.Password, s.SMTPPassword)
	overlay(&c.Auth.JWTSecret, s.JWTSecret)
	overlay(&c.Auth.CronSecret, s.CronSecret)
	overlay(&c.Redis.URL, s.RedisURL)
	return nil
}

func overlay(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Validate checks struct tags and the fields tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Scan.Location(); err != nil {
		return fmt.Errorf("invalid config: scan.timezone: %w", err)
	}
	return nil
}

// Location is the zone whose calendar decides what "today" is.
func (s ScanConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// RunAtClock returns the hour and minute of RunAt.
func (s ScanConfig) RunAtClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", s.RunAt)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *EmailConfig) ToServiceConfig() email.Config {
	return email.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		Timeout:  c.Timeout,
	}
}
