// Package config loads runtime configuration from a YAML file and
// FIELDSYNC_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Remote struct {
		BaseURL string `mapstructure:"base_url"`
		WSURL   string `mapstructure:"ws_url"`
		Token   string `mapstructure:"token"`
	} `mapstructure:"remote"`

	TenantID     string `mapstructure:"tenant_id"`
	TechnicianID string `mapstructure:"technician_id"`

	ListenAddr string `mapstructure:"listen_addr"`

	// CacheRetentionDays bounds how long unrefreshed snapshots live.
	CacheRetentionDays int `mapstructure:"cache_retention_days"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// Load reads configuration from path (optional) and the environment.
// Environment variables use the FIELDSYNC_ prefix with underscores,
// e.g. FIELDSYNC_REMOTE_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", ".fieldsync")
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("cache_retention_days", 30)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("fieldsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fieldsync")
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional; env and defaults still apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.CacheRetentionDays <= 0 {
		return nil, fmt.Errorf("cache_retention_days must be positive, got %d", cfg.CacheRetentionDays)
	}
	return &cfg, nil
}
