// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Replays ReplaysConfig `toml:"replays"`
	Rank    RankConfig    `toml:"rank"`
	Log     LogConfig     `toml:"log"`
}

// ReplaysConfig maps scan-related settings.
type ReplaysConfig struct {
	Dir         *string `toml:"dir"`
	ConnectCode *string `toml:"connect-code"`
	Workers     *int    `toml:"workers"`
}

// RankConfig maps ranking service settings.
type RankConfig struct {
	Endpoint          *string  `toml:"endpoint"`
	TimeoutSeconds    *float64 `toml:"timeout-seconds"`
	RequestsPerSecond *float64 `toml:"requests-per-second"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
