package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MirrorConfig controls the best-effort external calendar mirror.
type MirrorConfig struct {
	// Enabled toggles the ICS mirror entirely.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path is where the mirrored .ics file is written.
	Path string `yaml:"path" json:"path"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DBPath is the DuckDB database file. CADENCE_DB_PATH overrides it.
	DBPath string `yaml:"db_path" json:"db_path"`

	// Timezone is the IANA zone used when a user has no timezone
	// preference of their own.
	Timezone string `yaml:"timezone" json:"timezone"`

	// HorizonDays is how far forward the rolling window is materialized.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// RetentionDays is how long completed/skipped occurrences are kept
	// before pruning. Pending occurrences are never pruned by age.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// AdvanceCron is the cron schedule for the window scheduler.
	AdvanceCron string `yaml:"advance_cron" json:"advance_cron"`

	Mirror MirrorConfig `yaml:"mirror" json:"mirror"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		DBPath:        "cadence.db",
		Timezone:      "UTC",
		HorizonDays:   60,
		RetentionDays: 90,
		AdvanceCron:   "0 * * * *",
		Mirror: MirrorConfig{
			Enabled: true,
			Path:    "cadence.ics",
		},
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// config files still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "cadence.db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 60
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.AdvanceCron == "" {
		c.AdvanceCron = "0 * * * *"
	}
	if c.Mirror.Path == "" {
		c.Mirror.Path = "cadence.ics"
	}
}

// Load reads the config file at path. A missing file is not an error: the
// defaults are written there first (0600) and then returned, so a first
// run leaves an editable config behind.
func Load(path string) (*Config, error) {
	if path == "" {
		conf := DefaultConfig()
		conf.Normalize()
		return conf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			conf := DefaultConfig()
			conf.Normalize()
			if err := Save(path, conf); err != nil {
				return nil, fmt.Errorf("write initial config: %w", err)
			}
			return conf, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	conf.Normalize()
	return &conf, nil
}

// Save writes the config as YAML with owner-only permissions.
func Save(path string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
