// Package config loads service settings.
//
// Sources, later ones winning: struct defaults, an optional YAML file named
// by CONFIG_FILE, then environment variables (a .env file in the working
// directory is loaded into the environment first).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                 int           `yaml:"port" default:"8000" validate:"min=1,max=65535"`
	DataDir              string        `yaml:"data_dir" default:"data" validate:"required"`
	APIKey               string        `yaml:"api_key" default:"dev-key" validate:"required"`
	MaxUploadBytes       int64         `yaml:"max_upload_bytes" default:"52428800" validate:"gt=0"`
	MaxConcurrentUploads int64         `yaml:"max_concurrent_uploads" default:"8" validate:"gt=0"`
	DatePolicy           string        `yaml:"date_policy" default:"lenient" validate:"oneof=lenient strict"`
	LogDev               bool          `yaml:"log_dev"`
	TracingEnabled       bool          `yaml:"tracing_enabled"`
	StatsInterval        time.Duration `yaml:"stats_interval" default:"30s" validate:"gt=0"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config using getenv as the environment.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.Expand(string(data), getenv)), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// only fills zero-valued fields, so YAML values survive
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	overrides := []struct {
		key   string
		apply func(string) error
	}{
		{"PORT", func(v string) (err error) { cfg.Port, err = cast.ToIntE(v); return }},
		{"DATA_DIR", func(v string) error { cfg.DataDir = v; return nil }},
		{"API_KEY", func(v string) error { cfg.APIKey = v; return nil }},
		{"MAX_UPLOAD_BYTES", func(v string) (err error) { cfg.MaxUploadBytes, err = cast.ToInt64E(v); return }},
		{"MAX_CONCURRENT_UPLOADS", func(v string) (err error) { cfg.MaxConcurrentUploads, err = cast.ToInt64E(v); return }},
		{"DATE_POLICY", func(v string) error { cfg.DatePolicy = strings.ToLower(v); return nil }},
		{"LOG_DEV", func(v string) (err error) { cfg.LogDev, err = cast.ToBoolE(v); return }},
		{"TRACING_ENABLED", func(v string) (err error) { cfg.TracingEnabled, err = cast.ToBoolE(v); return }},
		{"STATS_INTERVAL", func(v string) (err error) { cfg.StatsInterval, err = cast.ToDurationE(v); return }},
		{"SHUTDOWN_TIMEOUT", func(v string) (err error) { cfg.ShutdownTimeout, err = cast.ToDurationE(v); return }},
	}

	for _, o := range overrides {
		v, ok := lookup(getenv, o.key)
		if !ok {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("%s: %w", o.key, err)
		}
	}
	return nil
}

func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	return v, v != ""
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors) //nolint:errorlint // validator returns this type directly
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	failed := make([]string, 0, len(errs))
	for _, fe := range errs {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		failed = append(failed, fmt.Sprintf("%s: %s", fe.Field(), tag))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(failed, ", "))
}
