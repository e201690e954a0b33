package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chela967/medicare/internal/platform/db"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	BaseURL     string `mapstructure:"BASE_URL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	// Idle connections are closed after DBMaxConnIdleTime; the pool pings
	// idle connections every DBHealthCheckPeriod.
	DBMaxConnIdleTime   time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	DBHealthCheckPeriod time.Duration `mapstructure:"DB_HEALTH_CHECK_PERIOD"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`

	StorageDriver  string `mapstructure:"STORAGE_DRIVER"`
	UploadDir      string `mapstructure:"UPLOAD_DIR"`
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	AMQPURL      string `mapstructure:"AMQP_URL"`
	MailQueue    string `mapstructure:"MAIL_QUEUE"`

	MeetingURLTemplate string        `mapstructure:"MEETING_URL_TEMPLATE"`
	ReminderLead       time.Duration `mapstructure:"REMINDER_LEAD"`
	ReminderCron       string        `mapstructure:"REMINDER_CRON"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "BASE_URL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_MAX_CONN_IDLE_TIME", "DB_HEALTH_CHECK_PERIOD", "REDIS_URL",
	"SESSION_SECRET", "SESSION_TTL",
	"STORAGE_DRIVER", "UPLOAD_DIR", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	"MINIO_BUCKET", "MINIO_USE_SSL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM", "AMQP_URL", "MAIL_QUEUE",
	"MEETING_URL_TEMPLATE", "REMINDER_LEAD", "REMINDER_CRON",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("BASE_URL", "http://localhost:8000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "5m")
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", "30s")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MINIO_BUCKET", "medicare")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "Medicare <no-reply@medicare.local>")
	v.SetDefault("MAIL_QUEUE", "medicare.mail")
	v.SetDefault("MEETING_URL_TEMPLATE", "https://meet.jit.si/%s")
	v.SetDefault("REMINDER_LEAD", "15m")
	v.SetDefault("REMINDER_CRON", "@every 1m")
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.SessionSecret == "" {
		log.Println("WARNING: SESSION_SECRET is empty; using an insecure development secret.")
		cfg.SessionSecret = "development-only-session-secret-change-me"
	}

	return cfg, nil
}

// PoolOptions collects the connection pool settings.
func (c *Config) PoolOptions() db.PoolOptions {
	return db.PoolOptions{
		MaxConns:          c.DBMaxConns,
		MinConns:          c.DBMinConns,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Production needs a
// strong session secret and a shared session store.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in production, got %d", len(c.SessionSecret))
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in production")
		}
	}

	switch c.StorageDriver {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required when STORAGE_DRIVER is \"local\"")
		}
	case "minio":
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_DRIVER is \"minio\"")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be \"local\" or \"minio\", got %q", c.StorageDriver)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.ReminderLead < 0 {
		return fmt.Errorf("REMINDER_LEAD must not be negative")
	}
	if !strings.Contains(c.MeetingURLTemplate, "%s") {
		return fmt.Errorf("MEETING_URL_TEMPLATE must contain %%s for the meeting id")
	}

	return nil
}
