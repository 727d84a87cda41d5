// Package config loads process configuration from a YAML file plus
// environment variable overrides, using viper the way the wider
// toolchain around this codebase does.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved, typed process configuration for a harvesting or
// watching run.
type Config struct {
	DataDir           string            `mapstructure:"data_dir"`
	PollIntervalSecs  int               `mapstructure:"poll_interval_seconds"`
	BatchIntervalSecs int               `mapstructure:"batch_interval_seconds"`
	TokenTTLSecs      int               `mapstructure:"token_ttl_seconds"`
	MaxAuthWorkers    int               `mapstructure:"max_auth_workers"`
	LockTimeoutSecs   int               `mapstructure:"lock_timeout_seconds"`
	EventTypeIDs      []string          `mapstructure:"event_type_ids"`
	Sources           map[string]string `mapstructure:"sources"`
	Currencies        map[string]string `mapstructure:"currencies"`
	MaxDenominator    int               `mapstructure:"max_denominator"`
	FractionTolerance float64           `mapstructure:"fraction_tolerance"`
	MinSources        int               `mapstructure:"min_sources"`
}

// PollInterval is PollIntervalSecs as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// BatchInterval is BatchIntervalSecs as a time.Duration.
func (c Config) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalSecs) * time.Second
}

// TokenTTL is TokenTTLSecs as a time.Duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSecs) * time.Second
}

// LockTimeout is LockTimeoutSecs as a time.Duration.
func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSecs) * time.Second
}

func defaults() Config {
	return Config{
		DataDir:           "./data",
		PollIntervalSecs:  30,
		BatchIntervalSecs: 300,
		TokenTTLSecs:      3600,
		MaxAuthWorkers:    4,
		LockTimeoutSecs:   10,
		MaxDenominator:    20,
		FractionTolerance: 0.01,
		MinSources:        2,
	}
}

// Load reads configuration from configPath (a YAML file; a missing or
// unreadable file is an error), layers TIDELINE_-prefixed environment variable overrides on top (e.g.
// TIDELINE_DATA_DIR), and fills in defaults for anything left unset.
// configPath may be empty, in which case only env vars and defaults
// apply.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	cfg := defaults()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("poll_interval_seconds", cfg.PollIntervalSecs)
	v.SetDefault("batch_interval_seconds", cfg.BatchIntervalSecs)
	v.SetDefault("token_ttl_seconds", cfg.TokenTTLSecs)
	v.SetDefault("max_auth_workers", cfg.MaxAuthWorkers)
	v.SetDefault("lock_timeout_seconds", cfg.LockTimeoutSecs)
	v.SetDefault("max_denominator", cfg.MaxDenominator)
	v.SetDefault("fraction_tolerance", cfg.FractionTolerance)
	v.SetDefault("min_sources", cfg.MinSources)

	v.SetEnvPrefix("tideline")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}
