package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the portal service
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogLevelName is the raw env value; LogLevel is resolved by LoadConfig
	LogLevelName string     `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level `env:"-"`

	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseEngine string `env:"DATABASE_ENGINE" envDefault:"postgres"`

	RedisURL string `env:"REDIS_URL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"portal.events"`

	Casdoor  CasdoorConfig  `envPrefix:"CASDOOR_"`
	Provider ProviderConfig `envPrefix:"PROVIDER_"`
	Storage  StorageConfig  `envPrefix:"COS_"`
	Live     LiveConfig     `envPrefix:"LIVE_"`
	Worker   WorkerConfig   `envPrefix:"WORKER_"`
	Media    MediaConfig    `envPrefix:"MEDIA_"`
}

// CasdoorConfig holds the Casdoor identity provider settings
type CasdoorConfig struct {
	Endpoint     string `env:"ENDPOINT"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Cert         string `env:"CERT"`
	Organization string `env:"ORGANIZATION"`
	Application  string `env:"APPLICATION"`
}

// ProviderConfig holds settings for the generative model provider
type ProviderConfig struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"https://api.sparkacademy.dev/v1"`
	APIKey     string        `env:"API_KEY"`
	ChatModel  string        `env:"CHAT_MODEL" envDefault:"spark-tutor-1"`
	ImageModel string        `env:"IMAGE_MODEL" envDefault:"spark-image-1"`
	VideoModel string        `env:"VIDEO_MODEL" envDefault:"spark-video-1"`
	TTSModel   string        `env:"TTS_MODEL" envDefault:"spark-tts-1"`
	LiveURL    string        `env:"LIVE_URL" envDefault:"wss://live.sparkacademy.dev/v1/session"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"90s"`
}

// StorageConfig holds object storage settings for generated media
type StorageConfig struct {
	BucketURL string `env:"BUCKET_URL"`
	SecretID  string `env:"SECRET_ID"`
	SecretKey string `env:"SECRET_KEY"`
}

// LiveConfig holds voice session settings
type LiveConfig struct {
	TicketSecret string        `env:"TICKET_SECRET"`
	TicketTTL    time.Duration `env:"TICKET_TTL" envDefault:"2m"`
	DefaultVoice string        `env:"DEFAULT_VOICE" envDefault:"aura"`
}

// WorkerConfig holds background worker intervals
type WorkerConfig struct {
	ReminderInterval  time.Duration `env:"REMINDER_INTERVAL" envDefault:"30s"`
	VideoPollInterval time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"10s"`
}

// MediaConfig holds media history retention settings
type MediaConfig struct {
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"30"`
}

// LoadConfig reads configuration from the environment, with .env as a
// development convenience
func LoadConfig() (*Config, error) {
	// .env is optional; deployments set variables directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseEngine {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_ENGINE is postgres")
		}
	case "sqlite":
		// empty URL means in-memory, which is fine for local runs
	default:
		return fmt.Errorf("unsupported DATABASE_ENGINE %q", c.DatabaseEngine)
	}

	if c.Environment == "production" && c.Live.TicketSecret == "" {
		return fmt.Errorf("LIVE_TICKET_SECRET is required in production")
	}

	return nil
}

func parseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
