// Package config loads testbed settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/testbed/internal/browser"
)

// Driver selects where browsers run.
type Driver string

const (
	DriverLocal  Driver = "local"
	DriverDocker Driver = "docker"
)

// Config is read once at startup and then treated as read-only.
type Config struct {
	BaseURL      string
	APIBaseURL   string
	Timeout      time.Duration
	Browser      browser.Kind
	Headless     bool
	Driver       Driver
	DockerImage  string
	AsyncWorkers int
	RateLimit    float64
	LogLevel     slog.Level
	Workers      int
	StubAddr     string
	ArtifactDir  string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BaseURL:      "https://the-internet.herokuapp.com",
		APIBaseURL:   "https://jsonplaceholder.typicode.com",
		Timeout:      10 * time.Second,
		Browser:      browser.Chrome,
		Headless:     true,
		Driver:       DriverLocal,
		DockerImage:  "browserless/chrome:latest",
		AsyncWorkers: 5,
		RateLimit:    0,
		LogLevel:     slog.LevelInfo,
		Workers:      2,
		StubAddr:     ":8080",
		ArtifactDir:  "artifacts",
	}
}

// Load applies the given .env files, or ./.env when none are given, then
// reads TESTBED_* variables over the defaults. A missing .env is not an
// error. Invalid values keep their default and are logged at Warn.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	l := loader{log: slog.Default().With("component", "config")}
	cfg := Default()

	cfg.BaseURL = l.str("TESTBED_BASE_URL", cfg.BaseURL)
	cfg.APIBaseURL = l.str("TESTBED_API_BASE_URL", cfg.APIBaseURL)
	cfg.Timeout = l.seconds("TESTBED_TIMEOUT", cfg.Timeout)
	cfg.Headless = l.bool("TESTBED_HEADLESS", cfg.Headless)
	cfg.DockerImage = l.str("TESTBED_DOCKER_IMAGE", cfg.DockerImage)
	cfg.AsyncWorkers = l.positiveInt("TESTBED_ASYNC_WORKERS", cfg.AsyncWorkers)
	cfg.Workers = l.positiveInt("TESTBED_WORKERS", cfg.Workers)
	cfg.RateLimit = l.rate("TESTBED_RATE_LIMIT", cfg.RateLimit)
	cfg.StubAddr = l.str("TESTBED_STUB_ADDR", cfg.StubAddr)
	cfg.ArtifactDir = l.str("TESTBED_ARTIFACT_DIR", cfg.ArtifactDir)

	if v, ok := os.LookupEnv("TESTBED_BROWSER"); ok {
		if kind, err := browser.ParseKind(v); err == nil {
			cfg.Browser = kind
		} else {
			l.invalid("TESTBED_BROWSER", v, cfg.Browser)
		}
	}

	if v, ok := os.LookupEnv("TESTBED_DRIVER"); ok {
		switch d := Driver(strings.ToLower(strings.TrimSpace(v))); d {
		case DriverLocal, DriverDocker:
			cfg.Driver = d
		default:
			l.invalid("TESTBED_DRIVER", v, cfg.Driver)
		}
	}

	if v, ok := os.LookupEnv("TESTBED_LOG_LEVEL"); ok {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			cfg.LogLevel = level
		} else {
			l.invalid("TESTBED_LOG_LEVEL", v, cfg.LogLevel)
		}
	}

	return cfg, nil
}

type loader struct {
	log *slog.Logger
}

func (l loader) invalid(key, value string, fallback any) {
	l.log.Warn("invalid config value, using default", "key", key, "value", value, "default", fallback)
}

func (l loader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (l loader) bool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		l.invalid(key, v, fallback)
		return fallback
	}
	return b
}

func (l loader) positiveInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		l.invalid(key, v, fallback)
		return fallback
	}
	return n
}

func (l loader) seconds(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || n <= 0 {
		l.invalid(key, v, fallback)
		return fallback
	}
	return time.Duration(n * float64(time.Second))
}

func (l loader) rate(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || n < 0 {
		l.invalid(key, v, fallback)
		return fallback
	}
	return n
}

// NewLogger creates a JSON logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
