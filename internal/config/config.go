// Package config loads runtime configuration for the promptpolish CLI.
// Everything is overridable through PROMPTPOLISH_* environment variables
// (a .env file in the working directory is honored by main); flags take
// precedence over the environment where a command exposes them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix shared by all configuration environment variables.
const EnvPrefix = "promptpolish"

// Config holds every tunable the CLI reads from the environment.
type Config struct {
	// APIURL is the base URL of the prompt optimization service.
	APIURL string `envconfig:"API_URL" default:"http://localhost:8000/api/v1" validate:"required,url"`

	// APIKey optionally authenticates requests as a bearer credential.
	// The keyring entry set via `promptpolish auth set-key` takes precedence.
	APIKey string `split_words:"true"`

	// RequestTimeout bounds every optimization service call, in seconds.
	RequestTimeout int `split_words:"true" default:"30" validate:"min=1"`

	// BridgeAddr is the listen/dial address of the local bridge daemon.
	BridgeAddr string `split_words:"true" default:"127.0.0.1:8377" validate:"required,hostname_port"`

	// ChatURL is the chat application the attach command drives.
	ChatURL string `split_words:"true" default:"https://chatgpt.com/" validate:"required,url"`

	// CDPURL attaches to an already-running Chrome over DevTools instead of
	// launching one (e.g. ws://127.0.0.1:9222).
	CDPURL string `envconfig:"CDP_URL"`

	// DebounceIdle is the auto-optimize idle window, in milliseconds.
	DebounceIdle int `split_words:"true" default:"2000" validate:"min=100"`

	// MinTriggerLen is the minimum rune count an input change must reach
	// before it arms the auto-optimize trigger.
	MinTriggerLen int `split_words:"true" default:"10" validate:"min=1"`

	// StateDir overrides the default state directory (see ResolveStateDir).
	StateDir string `split_words:"true"`

	// RedisURL switches the handoff store to Redis when set
	// (e.g. redis://localhost:6379/0).
	RedisURL string `envconfig:"REDIS_URL"`
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %s", extractValidationError(err))
	}
	return &cfg, nil
}

// MustLoad is Load for call sites that cannot continue without configuration.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// IdleWindow returns the debounce idle window as a duration.
func (c *Config) IdleWindow() time.Duration {
	return time.Duration(c.DebounceIdle) * time.Millisecond
}

// BridgeURL returns the HTTP base URL of the bridge daemon.
func (c *Config) BridgeURL() string {
	return "http://" + c.BridgeAddr
}

// DocsURL returns the service's interactive API docs page, derived from the
// configured base URL.
func (c *Config) DocsURL() string {
	base := strings.TrimSuffix(c.APIURL, "/api/v1")
	return strings.TrimRight(base, "/") + "/docs"
}

func extractValidationError(err error) string {
	var verrs validator.ValidationErrors
	if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
		ve := verrs[0]
		return fmt.Sprintf("%s failed %q", ve.Field(), ve.Tag())
	}
	return err.Error()
}
