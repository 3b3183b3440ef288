// Package config loads and validates the application configuration from a
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hydrograph-lab/timegrid/internal/aggregate"
	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/timecheck"
)

// Config is the top-level configuration for timegrid.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Series      SeriesConfig      `koanf:"series"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Flags       FlagsConfig       `koanf:"flags"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // "debug" or "release"
}

// DatabaseConfig holds the result-store connection settings. The store is
// optional; with Enabled false aggregation results are not persisted.
type DatabaseConfig struct {
	Enabled      bool   `koanf:"enabled"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// SeriesConfig holds the default temporal contract applied to incoming
// series when a request does not state its own.
type SeriesConfig struct {
	Resolution   string `koanf:"resolution"`
	Periodicity  string `koanf:"periodicity"`
	Anchor       string `koanf:"anchor"`
	OnDuplicate  string `koanf:"on_duplicate"`
	OnMisaligned string `koanf:"on_misaligned"`
}

// AggregationConfig holds default aggregation behavior.
type AggregationConfig struct {
	Anchor            string  `koanf:"anchor"`
	Criteria          string  `koanf:"criteria"`
	CriteriaThreshold float64 `koanf:"criteria_threshold"`
	Strict            bool    `koanf:"strict"`
}

// FlagsConfig points at the flag-system definition file. Empty means no
// systems are preloaded.
type FlagsConfig struct {
	SystemsPath string `koanf:"systems_path"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required when database.enabled")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	}

	if _, err := period.Parse(c.Series.Resolution); err != nil {
		return fmt.Errorf("invalid series.resolution %q: %w", c.Series.Resolution, err)
	}
	if c.Series.Periodicity != "" {
		if _, err := period.Parse(c.Series.Periodicity); err != nil {
			return fmt.Errorf("invalid series.periodicity %q: %w", c.Series.Periodicity, err)
		}
	}
	if _, err := timecheck.ParseAnchor(c.Series.Anchor); err != nil {
		return fmt.Errorf("invalid series.anchor: %w", err)
	}
	if _, err := timecheck.ParseDuplicatePolicy(c.Series.OnDuplicate); err != nil {
		return fmt.Errorf("invalid series.on_duplicate: %w", err)
	}
	switch timecheck.MisalignedPolicy(c.Series.OnMisaligned) {
	case timecheck.MisalignedFail, timecheck.MisalignedResolve:
	default:
		return fmt.Errorf("invalid series.on_misaligned %q", c.Series.OnMisaligned)
	}

	// Empty means aggregation inherits the series anchor.
	if c.Aggregation.Anchor != "" {
		if _, err := timecheck.ParseAnchor(c.Aggregation.Anchor); err != nil {
			return fmt.Errorf("invalid aggregation.anchor: %w", err)
		}
	}
	if _, err := aggregate.ParseCriteria(c.Aggregation.Criteria, c.Aggregation.CriteriaThreshold); err != nil {
		return fmt.Errorf("invalid aggregation.criteria: %w", err)
	}

	return nil
}

// DefaultValidator builds the timecheck validator the Series section
// describes.
func (c *Config) DefaultValidator() (*timecheck.Validator, error) {
	resolution, err := period.Parse(c.Series.Resolution)
	if err != nil {
		return nil, err
	}
	opts := []timecheck.Option{}
	if c.Series.Periodicity != "" {
		periodicity, err := period.Parse(c.Series.Periodicity)
		if err != nil {
			return nil, err
		}
		opts = append(opts, timecheck.WithPeriodicity(periodicity))
	}
	anchor, err := timecheck.ParseAnchor(c.Series.Anchor)
	if err != nil {
		return nil, err
	}
	dup, err := timecheck.ParseDuplicatePolicy(c.Series.OnDuplicate)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		timecheck.WithAnchor(anchor),
		timecheck.WithDuplicatePolicy(dup),
		timecheck.WithMisalignedPolicy(timecheck.MisalignedPolicy(c.Series.OnMisaligned)),
	)
	return timecheck.NewValidator(resolution, opts...)
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                    8080,
		"server.host":                    "0.0.0.0",
		"server.max_body_size_mb":        8,
		"server.mode":                    "release",
		"database.enabled":               false,
		"database.dsn":                   "",
		"database.max_open_conns":        25,
		"database.max_idle_conns":        25,
		"database.auto_migrate":          true,
		"series.resolution":              "PT0.000001S",
		"series.periodicity":             "",
		"series.anchor":                  "start",
		"series.on_duplicate":            "fail",
		"series.on_misaligned":           "fail",
		"aggregation.anchor":             "",
		"aggregation.criteria":           "",
		"aggregation.criteria_threshold": 0,
		"aggregation.strict":             false,
		"flags.systems_path":             "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("TIMEGRID_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TIMEGRID_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
