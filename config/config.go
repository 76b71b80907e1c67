package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/haulboard/infra/metrics"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore, e.g. HB_DATABASE__POSTGRES__DSN.
const EnvPrefix = "HB_"

type Config struct {
	HTTP        HTTPConfig        `json:"http"`
	Database    DatabaseConfig    `json:"database"`
	Notify      NotifyConfig      `json:"notify"`
	Planning    PlanningConfig    `json:"planning"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Metrics     metrics.Config    `json:"metrics"`
	Logging     LoggingConfig     `json:"logging"`
}

// PlanningConfig tunes the assignment engine.
type PlanningConfig struct {
	// GuardAssignments serialises checked assignments per driver, truck and
	// date so the conflict check and the commit cannot interleave.
	GuardAssignments bool `json:"guard_assignments"`
}

// MaintenanceConfig schedules background jobs.
type MaintenanceConfig struct {
	// RepairSchedule is a cron spec for the cut-info repair pass. Empty
	// disables the job.
	RepairSchedule string `json:"repair_schedule"`
}

// Load reads path (yaml or json) when given, then applies .env and HB_
// environment overrides. An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Database.SetDefaults()
	c.Notify.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
