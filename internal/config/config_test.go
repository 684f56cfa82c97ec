package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/roll/pkg/roll"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Roll.Display)
	assert.Equal(t, 1, cfg.Roll.Count)
	assert.Equal(t, 10000, cfg.Roll.ChartSamples)
	assert.Zero(t, cfg.Roll.Seed)
	assert.Equal(t, ":9090", cfg.Dashboard.Addr)
	assert.Empty(t, cfg.Dashboard.AllowedOrigins)
	assert.Equal(t, roll.DefaultResourceLimits(), cfg.Limits.ResourceLimits())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
roll:
  display: chart
  chart_samples: 500
  workers: 4
  seed: 42
limits:
  max_pool_size: 50
logging:
  level: DEBUG
dashboard:
  addr: "127.0.0.1:8000"
  allowed_origins:
    - "https://example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chart", cfg.Roll.Display)
	assert.Equal(t, 1, cfg.Roll.Count, "unset fields keep defaults")
	assert.Equal(t, 500, cfg.Roll.ChartSamples)
	assert.Equal(t, 4, cfg.Roll.Workers)
	assert.Equal(t, int64(42), cfg.Roll.Seed)
	assert.Equal(t, 50, cfg.Limits.MaxPoolSize)
	assert.Equal(t, 100, cfg.Limits.MaxExplosionRounds)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.ConsoleEnabled)
	assert.Equal(t, "127.0.0.1:8000", cfg.Dashboard.Addr)
	assert.Equal(t, []string{"https://example.com"}, cfg.Dashboard.AllowedOrigins)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "roll: [unclosed"))
	assert.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"display", "roll:\n  display: pie\n"},
		{"count", "roll:\n  count: 0\n"},
		{"samples", "roll:\n  chart_samples: -1\n"},
		{"workers", "roll:\n  workers: -2\n"},
		{"limits", "limits:\n  max_runs: -1\n"},
		{"clients", "dashboard:\n  max_clients: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "roll:\n  count: 3\n  display: value\n")

	t.Setenv("ROLL_COUNT", "7")
	t.Setenv("ROLL_SEED", "-5")
	t.Setenv("ROLL_WORKERS", "2")
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_FILE_ENABLED", "true")
	t.Setenv("ROLL_DASHBOARD_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Roll.Count)
	assert.Equal(t, "value", cfg.Roll.Display)
	assert.Equal(t, int64(-5), cfg.Roll.Seed)
	assert.Equal(t, 2, cfg.Roll.Workers)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleFormat)
	assert.True(t, cfg.Logging.FileEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Dashboard.AllowedOrigins)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("ROLL_COUNT", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"same origin", nil, "http://localhost:9090", "localhost:9090", true},
		{"same origin trailing slash", nil, "https://roll.example/", "roll.example", true},
		{"cross origin", nil, "http://evil.example", "localhost:9090", false},
		{"no origin header", nil, "", "localhost:9090", true},
		{"listed", []string{"https://a.example"}, "https://a.example", "localhost:9090", true},
		{"not listed", []string{"https://a.example"}, "https://b.example", "localhost:9090", false},
		{"wildcard", []string{"*"}, "https://b.example", "localhost:9090", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DashboardConfig{AllowedOrigins: tt.allowed}
			assert.Equal(t, tt.want, c.IsOriginAllowed(tt.origin, tt.host))
		})
	}
}
