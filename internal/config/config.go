// Package config loads the daemon configuration from YAML with environment
// overrides and validates it before anything starts.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/telemetry"
)

// #region config-types

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// StoreConfig holds the SQLite settings.
type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// TelemetryConfig holds the InfluxDB feed settings. Disabled means the
// guardrail runs against an empty snapshot and fails closed.
type TelemetryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Token           string `yaml:"token"`
	Org             string `yaml:"org" validate:"required_if=Enabled true"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	LookbackSeconds int    `yaml:"lookbackSeconds" validate:"gte=1"`
}

// GuardrailConfig holds the standing evaluation context.
type GuardrailConfig struct {
	WindowMs      float64 `yaml:"windowMs" validate:"gt=0"`
	Sampler       string  `yaml:"sampler" validate:"oneof=gaussian lorentzian"`
	PolicyMaxZeta float64 `yaml:"policyMaxZeta" validate:"gt=0"`
}

// #endregion config-types

// #region defaults

// Default returns the standing configuration used when no file is present.
func Default() Config {
	ec := guardrail.DefaultContext()
	ic := telemetry.DefaultInfluxConfig()
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: "casimirbot.db"},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			URL:             ic.URL,
			Token:           ic.Token,
			Org:             ic.Org,
			Bucket:          ic.Bucket,
			LookbackSeconds: int(ic.Lookback / time.Second),
		},
		Guardrail: GuardrailConfig{
			WindowMs:      ec.WindowMs,
			Sampler:       string(ec.Sampler),
			PolicyMaxZeta: ec.PolicyMaxZeta,
		},
	}
}

// #endregion defaults

// #region load

var validate = validator.New()

// Load reads the YAML file at path (missing file keeps the defaults), applies
// CASIMIRBOT_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults stand.
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the environment overrides onto an already-parsed config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CASIMIRBOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CASIMIRBOT_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CASIMIRBOT_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true"
	}
	if v := os.Getenv("CASIMIRBOT_INFLUX_URL"); v != "" {
		cfg.Telemetry.URL = v
	}
	if v := os.Getenv("CASIMIRBOT_INFLUX_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
	if v := os.Getenv("CASIMIRBOT_INFLUX_ORG"); v != "" {
		cfg.Telemetry.Org = v
	}
	if v := os.Getenv("CASIMIRBOT_INFLUX_BUCKET"); v != "" {
		cfg.Telemetry.Bucket = v
	}
}

// #endregion load

// #region converters

// EvalContext converts the guardrail section into an evaluation context.
func (c Config) EvalContext() guardrail.Context {
	return guardrail.Context{
		WindowMs:      c.Guardrail.WindowMs,
		Sampler:       guardrail.Sampler(c.Guardrail.Sampler),
		PolicyMaxZeta: c.Guardrail.PolicyMaxZeta,
	}
}

// InfluxConfig converts the telemetry section into a feed configuration.
func (c Config) InfluxConfig() telemetry.InfluxConfig {
	return telemetry.InfluxConfig{
		URL:      c.Telemetry.URL,
		Token:    c.Telemetry.Token,
		Org:      c.Telemetry.Org,
		Bucket:   c.Telemetry.Bucket,
		Lookback: time.Duration(c.Telemetry.LookbackSeconds) * time.Second,
	}
}

// #endregion converters
