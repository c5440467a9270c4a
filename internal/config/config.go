package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultRequestsPerSecond = 10
)

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	sentryDSN         string
	connectTimeout    time.Duration
	readTimeout       time.Duration
	requestsPerSecond int
	env               environment
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) ConnectTimeout() time.Duration {
	return c.connectTimeout
}

func (c *Config) ReadTimeout() time.Duration {
	return c.readTimeout
}

// Refill rate of the client side request limiter. 0 disables the limiter.
func (c *Config) RequestsPerSecond() int {
	return c.requestsPerSecond
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, connectTimeout: %s, readTimeout: %s, requestsPerSecond: %d, ...}",
		string(c.env), c.connectTimeout, c.readTimeout, c.requestsPerSecond,
	)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("MOJANGDIRECTORY_ENVIRONMENT")
	if !ok {
		return missingKey("MOJANGDIRECTORY_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: MOJANGDIRECTORY_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	connectTimeoutMS, err := intFromEnv("MOJANG_CONNECT_TIMEOUT_MS", int(DefaultConnectTimeout.Milliseconds()), 1)
	if err != nil {
		return Config{}, err
	}

	readTimeoutMS, err := intFromEnv("MOJANG_READ_TIMEOUT_MS", int(DefaultReadTimeout.Milliseconds()), 1)
	if err != nil {
		return Config{}, err
	}

	requestsPerSecond, err := intFromEnv("MOJANG_REQUESTS_PER_SECOND", DefaultRequestsPerSecond, 0)
	if err != nil {
		return Config{}, err
	}

	return Config{
		sentryDSN:         sentryDSN,
		connectTimeout:    time.Duration(connectTimeoutMS) * time.Millisecond,
		readTimeout:       time.Duration(readTimeoutMS) * time.Millisecond,
		requestsPerSecond: requestsPerSecond,
		env:               env,
	}, nil
}

func intFromEnv(key string, fallback int, minimum int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s (%s): %w", ErrInvalidValue, key, raw, err)
	}
	if value < minimum {
		return 0, fmt.Errorf("%w: %s (%d) must be at least %d", ErrInvalidValue, key, value, minimum)
	}
	return value, nil
}
