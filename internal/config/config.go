package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAppName          = "jitta_card"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultDBMaxConns       = 10
	defaultDBAcquireTimeout = 3 * time.Second
	defaultKafkaTopic       = "jitta_card.ledger.entries"
	defaultBreakerTimeout   = 30 * time.Second
	defaultBreakerFailures  = 5
	defaultLoginPerMinute   = 5
)

// Config captures application runtime configuration. Values come from an
// optional YAML file named by CONFIG_FILE, then from environment variables.
type Config struct {
	AppName          string        `yaml:"app_name"`
	AppEnv           string        `yaml:"app_env"`
	Port             string        `yaml:"port"`
	LogLevel         string        `yaml:"log_level"`
	DatabaseURL      string        `yaml:"database_url"`
	DBMaxConns       int32         `yaml:"db_max_conns"`
	DBAcquireTimeout time.Duration `yaml:"db_acquire_timeout"`
	RedisURL         string        `yaml:"redis_url"`
	IdempotencyTTL   time.Duration `yaml:"idempotency_ttl"`
	ShutdownPeriod   time.Duration `yaml:"shutdown_timeout"`
	KafkaBrokers     []string      `yaml:"kafka_brokers"`
	KafkaTopic       string        `yaml:"kafka_topic"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
	BreakerFailures  uint32        `yaml:"breaker_failures"`
	LoginPerMinute   int           `yaml:"login_per_minute"`
}

func defaults() Config {
	return Config{
		AppName:          defaultAppName,
		AppEnv:           defaultAppEnv,
		Port:             defaultPort,
		LogLevel:         defaultLogLevel,
		DBMaxConns:       defaultDBMaxConns,
		DBAcquireTimeout: defaultDBAcquireTimeout,
		IdempotencyTTL:   defaultIdempotencyTTL,
		ShutdownPeriod:   defaultShutdownDelay,
		KafkaTopic:       defaultKafkaTopic,
		BreakerTimeout:   defaultBreakerTimeout,
		BreakerFailures:  defaultBreakerFailures,
		LoginPerMinute:   defaultLoginPerMinute,
	}
}

// Load builds a Config from defaults, the optional CONFIG_FILE and the
// environment, in that order of precedence (last wins).
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.DBAcquireTimeout, err = durationFromEnv("DB_ACQUIRE_TIMEOUT", cfg.DBAcquireTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BreakerTimeout, err = durationFromEnv("BREAKER_TIMEOUT", cfg.BreakerTimeout); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}
	if v := os.Getenv("BREAKER_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Config{}, fmt.Errorf("invalid BREAKER_FAILURES %q", v)
		}
		cfg.BreakerFailures = uint32(n)
	}
	if v := os.Getenv("LOGIN_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid LOGIN_PER_MINUTE %q", v)
		}
		cfg.LoginPerMinute = n
	}

	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	return cfg, nil
}

// IsDev reports whether the app runs in a development or test environment,
// where the in-memory ledger store is allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// durationFromEnv reads KEY_SECONDS as whole seconds, falling back to KEY as a
// Go duration string.
func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
