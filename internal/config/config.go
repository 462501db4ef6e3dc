package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
)

const defaultJWTSecret = "change-me-tender-guard-operator-secret"

// Config holds the runtime settings of the server and the CLI
type Config struct {
	Port      string
	DataDir   string
	ModelsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	OperatorAPIKey string
	CORSOrigins    []string

	RetrainSchedule  string
	EnableLinguistic bool
	AlertWebhookURL  string
	CacheTTL         time.Duration

	RateLimitPerMinute int
	TrainLimitPerHour  int

	// AuditRetentionDays of 0 keeps audit entries forever
	AuditRetentionDays int

	LogLevel slog.Level
}

// Load reads the configuration from the environment, applying defaults
func Load() (*Config, error) {
	dataDir := getEnvOrDefault("DATA_DIR", "./data")

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		DataDir:         dataDir,
		ModelsDir:       getEnvOrDefault("MODELS_DIR", filepath.Join(dataDir, "models")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", defaultJWTSecret),
		OperatorAPIKey:  os.Getenv("OPERATOR_API_KEY"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		CORSOrigins:     splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}

	// An explicitly empty schedule disables retraining
	if schedule, ok := os.LookupEnv("RETRAIN_SCHEDULE"); ok {
		cfg.RetrainSchedule = strings.TrimSpace(schedule)
	} else {
		cfg.RetrainSchedule = "@daily"
	}

	var err error
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MIN", 60); err != nil {
		return nil, err
	}
	if cfg.TrainLimitPerHour, err = intEnv("TRAIN_LIMIT_PER_HOUR", 10); err != nil {
		return nil, err
	}
	if cfg.AuditRetentionDays, err = intEnv("AUDIT_RETENTION_DAYS", 365); err != nil {
		return nil, err
	}

	linguistic := getEnvOrDefault("ENABLE_LINGUISTIC", "false")
	if cfg.EnableLinguistic, err = strconv.ParseBool(linguistic); err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("ENABLE_LINGUISTIC must be a boolean, got %q", linguistic), err)
	}

	ttl := getEnvOrDefault("CACHE_TTL", "15m")
	if cfg.CacheTTL, err = time.ParseDuration(ttl); err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("CACHE_TTL must be a duration, got %q", ttl), err)
	}

	level := getEnvOrDefault("LOG_LEVEL", "info")
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("LOG_LEVEL %q is not a valid level", level), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be fixed up with a default
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.NewConfigurationError(fmt.Sprintf("PORT must be numeric, got %q", c.Port), err)
	}
	if c.CacheTTL <= 0 {
		return errors.NewConfigurationError("CACHE_TTL must be positive", nil)
	}
	if c.RateLimitPerMinute <= 0 || c.TrainLimitPerHour <= 0 {
		return errors.NewConfigurationError("rate limits must be positive", nil)
	}
	if c.AuditRetentionDays < 0 {
		return errors.NewConfigurationError("AUDIT_RETENTION_DAYS cannot be negative", nil)
	}
	if c.RetrainSchedule != "" {
		if _, err := cron.ParseStandard(c.RetrainSchedule); err != nil {
			return errors.NewConfigurationError(fmt.Sprintf("RETRAIN_SCHEDULE %q is not a valid cron spec", c.RetrainSchedule), err)
		}
	}
	return nil
}

// UsesDefaultSecret reports whether operator tokens are signed with the built-in secret
func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewConfigurationError(fmt.Sprintf("%s must be an integer, got %q", key, raw), err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
