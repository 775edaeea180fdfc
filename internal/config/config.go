package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	AuditTopic   string

	BackendBaseURL      string
	IdentityProviderURL string
	IdentityCredential  string

	ExchangeTimeout    time.Duration
	ExpiryBuffer       time.Duration
	RevalidateInterval time.Duration

	StudentPortalURL   string
	RecruiterPortalURL string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:            os.Getenv("HTTP_ADDR"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		AuditTopic:          os.Getenv("AUDIT_TOPIC"),
		BackendBaseURL:      os.Getenv("BACKEND_BASE_URL"),
		IdentityProviderURL: os.Getenv("IDENTITY_PROVIDER_URL"),
		IdentityCredential:  os.Getenv("IDENTITY_CREDENTIAL"),
		ExchangeTimeout:     duration(os.Getenv("EXCHANGE_TIMEOUT"), 10*time.Second),
		ExpiryBuffer:        duration(os.Getenv("EXPIRY_BUFFER"), 120*time.Second),
		RevalidateInterval:  duration(os.Getenv("REVALIDATE_INTERVAL"), 10*time.Minute),
		StudentPortalURL:    os.Getenv("STUDENT_PORTAL_URL"),
		RecruiterPortalURL:  os.Getenv("RECRUITER_PORTAL_URL"),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=admin_session sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.AuditTopic == "" {
		cfg.AuditTopic = "session-events"
	}
	if cfg.BackendBaseURL == "" {
		cfg.BackendBaseURL = "http://localhost:9000"
	}
	if cfg.IdentityProviderURL == "" {
		cfg.IdentityProviderURL = "http://localhost:9100"
	}
	if cfg.StudentPortalURL == "" {
		cfg.StudentPortalURL = "https://learn.openlms.dev"
	}
	if cfg.RecruiterPortalURL == "" {
		cfg.RecruiterPortalURL = "https://hire.openlms.dev"
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"backend_base_url", cfg.BackendBaseURL,
		"identity_provider_url", cfg.IdentityProviderURL)
	return cfg
}

func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in config, using default", "value", raw, "default", fallback)
		return fallback
	}
	return d
}
