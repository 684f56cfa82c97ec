// Package config loads roll settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/chosenoffset/roll/internal/logger"
	"github.com/chosenoffset/roll/pkg/roll"
	"github.com/chosenoffset/roll/pkg/roll/render"
)

// Config holds all settings for the roll command and server.
type Config struct {
	Roll      RollConfig      `yaml:"roll"`
	Limits    LimitsConfig    `yaml:"limits"`
	Logging   logger.Config   `yaml:"logging"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// RollConfig holds defaults for the roll command.
type RollConfig struct {
	Display      string `yaml:"display" env:"ROLL_DISPLAY"`
	Count        int    `yaml:"count" env:"ROLL_COUNT"`
	ChartSamples int    `yaml:"chart_samples" env:"ROLL_CHART_SAMPLES"`

	// Workers is the number of goroutines used to sample charts.
	// 0 samples on the calling goroutine.
	Workers int `yaml:"workers" env:"ROLL_WORKERS"`

	// Seed fixes the random stream. 0 draws a fresh seed per invocation.
	Seed int64 `yaml:"seed" env:"ROLL_SEED"`
}

// LimitsConfig mirrors roll.ResourceLimits. A zero field disables that limit.
type LimitsConfig struct {
	MaxPoolSize        int `yaml:"max_pool_size" env:"ROLL_MAX_POOL_SIZE"`
	MaxExplosionRounds int `yaml:"max_explosion_rounds" env:"ROLL_MAX_EXPLOSION_ROUNDS"`
	MaxRuns            int `yaml:"max_runs" env:"ROLL_MAX_RUNS"`
	MaxExpressionNodes int `yaml:"max_expression_nodes" env:"ROLL_MAX_EXPRESSION_NODES"`
}

// DashboardConfig holds settings for `roll serve`.
type DashboardConfig struct {
	Addr string `yaml:"addr" env:"ROLL_DASHBOARD_ADDR"`

	// MaxClients caps concurrent websocket clients. 0 means unlimited.
	MaxClients int `yaml:"max_clients" env:"ROLL_DASHBOARD_MAX_CLIENTS"`

	// AllowedOrigins lists origins allowed to open a websocket.
	// Empty enforces same-origin; "*" allows all.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ROLL_DASHBOARD_ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	limits := roll.DefaultResourceLimits()
	return &Config{
		Roll: RollConfig{
			Display:      string(render.ModeFull),
			Count:        1,
			ChartSamples: 10000,
		},
		Limits: LimitsConfig{
			MaxPoolSize:        limits.MaxPoolSize,
			MaxExplosionRounds: limits.MaxExplosionRounds,
			MaxRuns:            limits.MaxRuns,
			MaxExpressionNodes: limits.MaxExpressionNodes,
		},
		Logging: logger.DefaultConfig(),
		Dashboard: DashboardConfig{
			Addr:           ":9090",
			MaxClients:     100,
			AllowedOrigins: []string{},
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file (or empty path) is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if _, err := render.ParseMode(c.Roll.Display); err != nil {
		return fmt.Errorf("roll.display: %w", err)
	}
	if c.Roll.Count < 1 {
		return fmt.Errorf("roll.count must be positive, got %d", c.Roll.Count)
	}
	if c.Roll.ChartSamples < 1 {
		return fmt.Errorf("roll.chart_samples must be positive, got %d", c.Roll.ChartSamples)
	}
	if c.Roll.Workers < 0 {
		return fmt.Errorf("roll.workers must not be negative, got %d", c.Roll.Workers)
	}

	l := c.Limits
	if l.MaxPoolSize < 0 || l.MaxExplosionRounds < 0 || l.MaxRuns < 0 || l.MaxExpressionNodes < 0 {
		return errors.New("limits must not be negative")
	}
	if c.Dashboard.MaxClients < 0 {
		return fmt.Errorf("dashboard.max_clients must not be negative, got %d", c.Dashboard.MaxClients)
	}
	return nil
}

// ResourceLimits converts the limits section for the engine.
func (l LimitsConfig) ResourceLimits() *roll.ResourceLimits {
	return &roll.ResourceLimits{
		MaxPoolSize:        l.MaxPoolSize,
		MaxExplosionRounds: l.MaxExplosionRounds,
		MaxRuns:            l.MaxRuns,
		MaxExpressionNodes: l.MaxExpressionNodes,
	}
}

// IsOriginAllowed checks if the given origin may open a websocket.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *DashboardConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // non-browser client
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
