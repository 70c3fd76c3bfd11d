package config // package config loads application configuration from environment variables

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  DatabaseURL is sensitive and is only ever handed
// to the driver.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBDriver       string        // "mysql" or "pgx"
	DatabaseURL    string        // relational DSN (secret)
	DBProbeTimeout time.Duration // startup liveness probe ceiling

	RedisProbeTimeout time.Duration // startup liveness probe ceiling for Redis

	HealthInterval time.Duration // how often live connections are pinged
	HealthFailures int           // consecutive failed pings before the connection counts as lost

	SessionTTL           time.Duration // hard session lifetime from the last refresh
	SessionRefreshWindow time.Duration // sessions expiring sooner than this are extended

	SupervisorInitialDelay time.Duration
	SupervisorMaxDelay     time.Duration

	AMQPURL      string // empty disables domain events
	OTLPEndpoint string // empty disables trace export
	AssetCDNBase string // base URL of uploaded assets

	LogLevel  string
	LogFormat string

	RateLimit RateLimitConfig
}

// Load reads a .env file when one exists, then builds a Config from the
// process environment.  Variables already set in the environment win over
// the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	dsn, err := must("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Env:                    envStr("APP_ENV", "dev"),
		Port:                   envStr("APP_PORT", "3000"),
		DBDriver:               strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DatabaseURL:            dsn,
		DBProbeTimeout:         envDur("DB_PROBE_TIMEOUT", 10*time.Second),
		RedisProbeTimeout:      envDur("REDIS_PROBE_TIMEOUT", 5*time.Second),
		HealthInterval:         envDur("HEALTH_INTERVAL", 5*time.Second),
		HealthFailures:         envInt("HEALTH_FAILURES", 2),
		SessionTTL:             envDur("SESSION_TTL", 30*24*time.Hour),
		SessionRefreshWindow:   envDur("SESSION_REFRESH_WINDOW", 15*24*time.Hour),
		SupervisorInitialDelay: envDur("SUPERVISOR_INITIAL_DELAY", time.Second),
		SupervisorMaxDelay:     envDur("SUPERVISOR_MAX_DELAY", 8*time.Second),
		AMQPURL:                os.Getenv("AMQP_URL"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AssetCDNBase:           strings.TrimRight(envStr("ASSET_CDN_BASE", "http://localhost:3000/assets"), "/"),
		LogLevel:               envStr("LOG_LEVEL", "info"),
		LogFormat:              envStr("LOG_FORMAT", "text"),
		RateLimit:              LoadRateLimitConfig(),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "mysql", "pgx":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Errorf("invalid APP_PORT %q", c.Port)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.SessionRefreshWindow < 0 || c.SessionRefreshWindow > c.SessionTTL {
		return errors.New("SESSION_REFRESH_WINDOW must be between 0 and SESSION_TTL")
	}
	if c.HealthFailures < 1 {
		return errors.New("HEALTH_FAILURES must be at least 1")
	}
	if c.SupervisorInitialDelay <= 0 || c.SupervisorMaxDelay < c.SupervisorInitialDelay {
		return errors.New("supervisor delays must satisfy 0 < SUPERVISOR_INITIAL_DELAY <= SUPERVISOR_MAX_DELAY")
	}
	return nil
}

// must retrieves the value of a required environment variable.
func must(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", errors.Errorf("missing required env var: %s", key)
	}
	return v, nil
}
