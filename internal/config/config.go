// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	// Marketplace rules
	DailyApplicationLimit       int `mapstructure:"DAILY_APPLICATION_LIMIT"`
	InvitationTTLHours          int `mapstructure:"INVITATION_TTL_HOURS"`
	DefaultMaxInvitations       int `mapstructure:"DEFAULT_MAX_INVITATIONS"`
	DeadlineReminderWindowHours int `mapstructure:"DEADLINE_REMINDER_WINDOW_HOURS"`

	// Embedding provider: "http" (OpenAI-compatible) or "hash" (local, deterministic)
	EmbeddingProvider   string `mapstructure:"EMBEDDING_PROVIDER"`
	EmbeddingAPIURL     string `mapstructure:"EMBEDDING_API_URL"`
	EmbeddingAPIKey     string `mapstructure:"EMBEDDING_API_KEY"`
	EmbeddingModel      string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `mapstructure:"EMBEDDING_DIMENSIONS"`

	// Vector index: empty URL selects the in-process index
	VectorIndexURL        string `mapstructure:"VECTOR_INDEX_URL"`
	VectorIndexCollection string `mapstructure:"VECTOR_INDEX_COLLECTION"`
	VectorIndexAPIKey     string `mapstructure:"VECTOR_INDEX_API_KEY"`
	VectorIndexTimeoutMS  int    `mapstructure:"VECTOR_INDEX_TIMEOUT_MS"`

	AWSRegion            string `mapstructure:"AWS_REGION"`
	AWSAccessKeyID       string `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey   string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	S3Bucket             string `mapstructure:"S3_BUCKET"`
	S3Endpoint           string `mapstructure:"S3_ENDPOINT"`
	S3PublicBaseURL      string `mapstructure:"S3_PUBLIC_BASE_URL"`
	ImageMaxDimension    int    `mapstructure:"IMAGE_MAX_DIMENSION"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// Cron specs for the maintenance sweeps (UTC)
	SweepListingsCron    string `mapstructure:"SWEEP_LISTINGS_CRON"`
	SweepInvitationsCron string `mapstructure:"SWEEP_INVITATIONS_CRON"`
	DeadlineReminderCron string `mapstructure:"DEADLINE_REMINDER_CRON"`
	WorkerConcurrency    int    `mapstructure:"WORKER_CONCURRENCY"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; environment variables alone are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))
	config.EmbeddingProvider = strings.ToLower(strings.TrimSpace(config.EmbeddingProvider))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "billboard")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("DAILY_APPLICATION_LIMIT", 3)
	viper.SetDefault("INVITATION_TTL_HOURS", 7*24)
	viper.SetDefault("DEFAULT_MAX_INVITATIONS", 10)
	viper.SetDefault("DEADLINE_REMINDER_WINDOW_HOURS", 24)

	viper.SetDefault("EMBEDDING_PROVIDER", "hash")
	viper.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	viper.SetDefault("EMBEDDING_DIMENSIONS", 256)

	viper.SetDefault("VECTOR_INDEX_URL", "")
	viper.SetDefault("VECTOR_INDEX_COLLECTION", "listings")
	viper.SetDefault("VECTOR_INDEX_TIMEOUT_MS", 2000)

	viper.SetDefault("AWS_REGION", "eu-central-1")
	viper.SetDefault("IMAGE_MAX_DIMENSION", 2048)
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 10)

	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_FROM", "no-reply@billboard.local")

	viper.SetDefault("SWEEP_LISTINGS_CRON", "*/10 * * * *")
	viper.SetDefault("SWEEP_INVITATIONS_CRON", "*/15 * * * *")
	viper.SetDefault("DEADLINE_REMINDER_CRON", "0 * * * *")
	viper.SetDefault("WORKER_CONCURRENCY", 4)

	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// InvitationTTL is the fixed lifetime of an invitation.
func (c *Config) InvitationTTL() time.Duration {
	if c.InvitationTTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.InvitationTTLHours) * time.Hour
}

// DeadlineReminderWindow is how far ahead of a deadline owners are reminded.
func (c *Config) DeadlineReminderWindow() time.Duration {
	if c.DeadlineReminderWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DeadlineReminderWindowHours) * time.Hour
}

// VectorIndexTimeout bounds every call to the vector index.
func (c *Config) VectorIndexTimeout() time.Duration {
	if c.VectorIndexTimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.VectorIndexTimeoutMS) * time.Millisecond
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DailyApplicationLimit < 0 {
		return errors.New("DAILY_APPLICATION_LIMIT must not be negative")
	}
	if c.DefaultMaxInvitations < 0 {
		return errors.New("DEFAULT_MAX_INVITATIONS must not be negative")
	}
	if c.ImageMaxUploadSizeMB < 0 {
		return errors.New("IMAGE_MAX_UPLOAD_SIZE_MB must not be negative")
	}

	switch c.EmbeddingProvider {
	case "", "hash":
	case "http":
		if c.EmbeddingAPIURL == "" {
			return errors.New("EMBEDDING_API_URL is required when EMBEDDING_PROVIDER=http")
		}
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	if c.IsProduction() {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
