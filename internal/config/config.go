package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	defaultEnv         = "development"
	defaultHTTPHost    = "0.0.0.0"
	defaultHTTPPort    = 8080
	defaultFeedURL     = "wss://ws.finnhub.io"
	defaultRedisURL    = "redis://localhost:6379/0"
	defaultWindowStart = "05:00"
	defaultWindowEnd   = "05:05"
	defaultCleanAt     = "05:03"
	defaultPushCommand = "python3 scripts/push.py"
)

// Config keeps the runtime configuration for the collector.
type Config struct {
	Env         string
	HTTP        HTTPConfig
	Feed        FeedConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Maintenance MaintenanceConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// FeedConfig stores trade feed connection parameters.
type FeedConfig struct {
	URL   string
	Token string
}

// Endpoint renders the full websocket URL including the API token.
func (f FeedConfig) Endpoint() string {
	return fmt.Sprintf("%s?token=%s", f.URL, url.QueryEscape(f.Token))
}

// RedisConfig stores cache store connection parameters. TLS is selected by the
// URL scheme (rediss:// vs redis://).
type RedisConfig struct {
	URL string
}

// PostgresConfig stores durable store connection parameters. TLS is selected
// by sslmode in the DSN.
type PostgresConfig struct {
	DSN string
}

// MaintenanceConfig describes the daily maintenance window as offsets from
// UTC midnight.
type MaintenanceConfig struct {
	WindowStart time.Duration
	WindowEnd   time.Duration
	CleanAt     time.Duration
	PushCommand string
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	token := os.Getenv("FINNHUB_API_KEY")
	if token == "" {
		return nil, errors.New("FINNHUB_API_KEY is required")
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	windowStart, err := getClock("MAINT_WINDOW_START", defaultWindowStart)
	if err != nil {
		return nil, err
	}
	windowEnd, err := getClock("MAINT_WINDOW_END", defaultWindowEnd)
	if err != nil {
		return nil, err
	}
	cleanAt, err := getClock("MAINT_CLEAN_AT", defaultCleanAt)
	if err != nil {
		return nil, err
	}
	if !(windowStart < cleanAt && cleanAt < windowEnd) {
		return nil, errors.New("maintenance times must satisfy start < clean < end")
	}

	return &Config{
		Env: getString("APP_ENV", defaultEnv),
		HTTP: HTTPConfig{
			Host: getString("HTTP_HOST", defaultHTTPHost),
			Port: port,
		},
		Feed: FeedConfig{
			URL:   getString("FEED_URL", defaultFeedURL),
			Token: token,
		},
		Redis: RedisConfig{
			URL: getString("REDIS_URL", defaultRedisURL),
		},
		Postgres: PostgresConfig{
			DSN: dsn,
		},
		Maintenance: MaintenanceConfig{
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			CleanAt:     cleanAt,
			PushCommand: getString("PUSH_COMMAND", defaultPushCommand),
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

// getClock parses an HH:MM wall-clock value into an offset from UTC midnight.
func getClock(key, fallback string) (time.Duration, error) {
	raw := getString(key, fallback)
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s value %q as HH:MM: %w", key, raw, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
