package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hours-bank/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORS.AllowOrigins)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "hoursbank.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "Europe/Lisbon", cfg.Clock.Timezone)
	assert.Equal(t, "0.1", cfg.Ledger.Threshold().String())
	assert.Equal(t, "0.01", cfg.Ledger.Tolerance().String())
	assert.Len(t, cfg.Admin.DebitTypes, 4)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	// GIVEN: A file overriding some keys and an env var overriding another
	path := writeConfig(t, `
server:
  port: 9090
db:
  driver: memory
  path: snapshot.json
log:
  level: warn
scheduler:
  interval: 30s
ledger:
  materiality_threshold: "0.25"
admin:
  debit_types: [unjustified]
`)
	t.Setenv("HOURSBANK_LOG_LEVEL", "debug")

	// WHEN: The configuration is loaded
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: env > file > defaults
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "snapshot.json", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, "0.25", cfg.Ledger.Threshold().String())
	assert.Equal(t, []string{"unjustified"}, cfg.Admin.DebitTypes)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Server:    config.ServerConfig{Port: 8080},
			Database:  config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
			Scheduler: config.SchedulerConfig{Enabled: true, Interval: time.Minute},
			Clock:     config.ClockConfig{Timezone: "UTC"},
			Ledger:    config.LedgerConfig{MaterialityThreshold: "0.1", DriftTolerance: "0.01"},
			Admin:     config.AdminConfig{DebitTypes: []string{"vacation"}},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(c *config.Config){
		"port":      func(c *config.Config) { c.Server.Port = 0 },
		"driver":    func(c *config.Config) { c.Database.Driver = "postgres" },
		"path":      func(c *config.Config) { c.Database.Path = "" },
		"interval":  func(c *config.Config) { c.Scheduler.Interval = 0 },
		"timezone":  func(c *config.Config) { c.Clock.Timezone = "Mars/Olympus" },
		"threshold": func(c *config.Config) { c.Ledger.MaterialityThreshold = "-1" },
		"tolerance": func(c *config.Config) { c.Ledger.DriftTolerance = "abc" },
		"admin":     func(c *config.Config) { c.Admin.DebitTypes = []string{"sick"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
