package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	TextService TextServiceConfig
	Triage      TriageConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Report      ReportConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// URL is a postgres DSN. Empty selects the in-memory case store.
	URL            string
	ConnectRetries int
}

type RedisConfig struct {
	// Addr empty selects the in-process case lock.
	Addr     string
	Password string
	DB       int
}

// TextServiceConfig points at an OpenAI-compatible chat completion API used
// for symptom understanding and patient summary rephrasing.
type TextServiceConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Enabled bool
}

type TriageConfig struct {
	HistoryWindow int
	LockTTL       time.Duration
	LockWait      time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level  string
	Format string
}

type ReportConfig struct {
	FontPath string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8080),
			Env:             getEnv("ENV", "development"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			ConnectRetries: getEnvInt("DATABASE_CONNECT_RETRIES", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		TextService: TextServiceConfig{
			BaseURL: getEnv("TEXT_SERVICE_BASE_URL", "https://api.deepseek.com/v1"),
			APIKey:  getEnv("TEXT_SERVICE_API_KEY", ""),
			Model:   getEnv("TEXT_SERVICE_MODEL", "deepseek-chat"),
			Timeout: getEnvDuration("TEXT_SERVICE_TIMEOUT", 8*time.Second),
		},
		Triage: TriageConfig{
			HistoryWindow: getEnvInt("HISTORY_WINDOW", 5),
			LockTTL:       getEnvDuration("LOCK_TTL", 30*time.Second),
			LockWait:      getEnvDuration("LOCK_WAIT_TIMEOUT", 15*time.Second),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Report: ReportConfig{
			FontPath: getEnv("REPORT_FONT_PATH", ""),
		},
	}
	cfg.TextService.Enabled = getEnvBool("TEXT_SERVICE_ENABLED", cfg.TextService.APIKey != "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Triage.HistoryWindow < 1 {
		return fmt.Errorf("HISTORY_WINDOW must be at least 1, got %d", c.Triage.HistoryWindow)
	}
	if c.TextService.Timeout <= 0 {
		return fmt.Errorf("TEXT_SERVICE_TIMEOUT must be positive")
	}
	// a turn runs two bounded service calls while holding the case lock
	if c.Triage.LockTTL <= 2*c.TextService.Timeout {
		return fmt.Errorf("LOCK_TTL (%s) must exceed twice TEXT_SERVICE_TIMEOUT (%s)", c.Triage.LockTTL, c.TextService.Timeout)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
