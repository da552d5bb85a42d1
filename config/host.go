package config

import (
	"fmt"
	"os"

	"github.com/GoCodeAlone/modhost/feeders"
)

// EnvPrefix prefixes every environment override of HostConfig.
const EnvPrefix = "MODHOST"

// HostConfig holds the settings of one host process.
type HostConfig struct {
	// PluginsFile is the plugin list to register at startup.
	PluginsFile string `yaml:"plugins_file" toml:"plugins_file" json:"plugins_file" hcl:"plugins_file,optional" env:"PLUGINS_FILE" default:"plugins.yaml"`
	// DataDirectory is the root of the per-plugin data directories.
	DataDirectory string `yaml:"data_directory" toml:"data_directory" json:"data_directory" hcl:"data_directory,optional" env:"DATA_DIRECTORY" default:"plugins"`
	// Insecure disables capability enforcement.
	Insecure  bool   `yaml:"insecure" toml:"insecure" json:"insecure" hcl:"insecure,optional" env:"INSECURE"`
	LogLevel  string `yaml:"log_level" toml:"log_level" json:"log_level" hcl:"log_level,optional" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" toml:"log_format" json:"log_format" hcl:"log_format,optional" env:"LOG_FORMAT" default:"json"`
	// AdminAddr is the listen address of the admin endpoint; empty disables it.
	AdminAddr string `yaml:"admin_addr" toml:"admin_addr" json:"admin_addr" hcl:"admin_addr,optional" env:"ADMIN_ADDR"`
	// WatchPlugins registers plugins added to the plugin list while running.
	WatchPlugins bool `yaml:"watch_plugins" toml:"watch_plugins" json:"watch_plugins" hcl:"watch_plugins,optional" env:"WATCH_PLUGINS"`
}

// Load reads the host settings. path is optional; a missing file is an
// error only when path is set. Environment variables prefixed with
// MODHOST_ override file values and defaults fill the rest.
func Load(path string) (*HostConfig, error) {
	cfg := &HostConfig{}
	var sources []feeders.Feeder
	if path != "" {
		f, err := feeders.ForFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("host config: %w", err)
		}
		sources = append(sources, f)
	}
	sources = append(sources, feeders.NewAffixedEnvFeeder(EnvPrefix, ""))

	if err := feeders.Feed(cfg, sources...); err != nil {
		return nil, fmt.Errorf("host config: %w", err)
	}
	if err := ProcessDefaults(cfg); err != nil {
		return nil, fmt.Errorf("host config: %w", err)
	}
	return cfg, nil
}

// Default returns the settings used when no file or environment is given.
func Default() *HostConfig {
	cfg := &HostConfig{}
	_ = ProcessDefaults(cfg)
	return cfg
}
