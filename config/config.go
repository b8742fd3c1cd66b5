// Package config loads the daemon configuration from a YAML or TOML file,
// chosen by extension, with HOGARFIX_* environment variables taking
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// AppConfig is the daemon configuration.
type AppConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" toml:"listen"`

	// DatabasePath is the SQLite database file path.
	DatabasePath string `yaml:"database_path" toml:"database_path"`

	// ManifestDir, when set, is watched for dropped-in manifest JSON
	// files which are registered on the fly.
	ManifestDir string `yaml:"manifest_dir" toml:"manifest_dir"`

	// ResyncSchedule is a cron expression for the periodic re-sync of
	// persisted modules into the runtime. Empty disables the job.
	ResyncSchedule string `yaml:"resync_schedule" toml:"resync_schedule"`

	// LogLevel selects the zap level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Listen:         ":8085",
		DatabasePath:   "hogarfix.db",
		ResyncSchedule: "@every 10m",
		LogLevel:       "info",
	}
}

// Load reads the config file at path, falling back to defaults for unset
// values, then applies environment overrides. An empty path loads defaults
// plus environment only.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		switch ext := filepath.Ext(path); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml config %q: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse toml config %q: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unsupported config extension %q", ext)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"HOGARFIX_LISTEN", &cfg.Listen},
		{"HOGARFIX_DATABASE_PATH", &cfg.DatabasePath},
		{"HOGARFIX_MANIFEST_DIR", &cfg.ManifestDir},
		{"HOGARFIX_RESYNC_SCHEDULE", &cfg.ResyncSchedule},
		{"HOGARFIX_LOG_LEVEL", &cfg.LogLevel},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.target = v
		}
	}
}
