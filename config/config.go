package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Clock     ClockConfig     `mapstructure:"clock"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig selects the store. For "sqlite", Path is the database
// file (":memory:" allowed); for "memory", Path is the JSON snapshot.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type ClockConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Location loads the configured timezone.
func (c ClockConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LedgerConfig holds decimal strings so no threshold passes through float64.
type LedgerConfig struct {
	MaterialityThreshold string `mapstructure:"materiality_threshold"`
	DriftTolerance       string `mapstructure:"drift_tolerance"`
}

func (c LedgerConfig) Threshold() decimal.Decimal {
	d, _ := decimal.NewFromString(c.MaterialityThreshold)
	return d
}

func (c LedgerConfig) Tolerance() decimal.Decimal {
	d, _ := decimal.NewFromString(c.DriftTolerance)
	return d
}

type AdminConfig struct {
	DebitTypes []string `mapstructure:"debit_types"`
}

var adminTypes = map[string]bool{"justified": true, "vacation": true, "training": true, "unjustified": true}

// Load reads configuration from path (optional), the environment and
// defaults, in that order of precedence: env > file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"*"})

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "hoursbank.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1m")

	v.SetDefault("clock.timezone", "Europe/Lisbon")

	v.SetDefault("ledger.materiality_threshold", "0.1")
	v.SetDefault("ledger.drift_tolerance", "0.01")

	v.SetDefault("admin.debit_types", []string{"justified", "vacation", "training", "unjustified"})

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HOURSBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be within 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "memory" {
		return fmt.Errorf("config: db.driver must be sqlite or memory, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: db.path is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	if _, err := c.Clock.Location(); err != nil {
		return fmt.Errorf("config: clock.timezone: %w", err)
	}
	if d, err := decimal.NewFromString(c.Ledger.MaterialityThreshold); err != nil || !d.IsPositive() {
		return fmt.Errorf("config: ledger.materiality_threshold must be a positive number, got %q", c.Ledger.MaterialityThreshold)
	}
	if d, err := decimal.NewFromString(c.Ledger.DriftTolerance); err != nil || !d.IsPositive() {
		return fmt.Errorf("config: ledger.drift_tolerance must be a positive number, got %q", c.Ledger.DriftTolerance)
	}
	for _, t := range c.Admin.DebitTypes {
		if !adminTypes[t] {
			return fmt.Errorf("config: admin.debit_types: unknown type %q", t)
		}
	}
	return nil
}
