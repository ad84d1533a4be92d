// Package config loads the CLI wrapper's YAML configuration. The core
// engine takes explicit constructor arguments and needs no config of
// its own; this package exists only for cmd/minisql.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the CLI wrapper's settings: default workdir, default B-tree
// minimum degree for implicit/CREATE INDEX indexes, and history file
// behavior.
type Config struct {
	Workdir string `mapstructure:"workdir"`

	Index struct {
		DefaultT int32 `mapstructure:"default_t"`
	} `mapstructure:"index"`

	History struct {
		Path string `mapstructure:"path"`
		Max  int    `mapstructure:"max"`
	} `mapstructure:"history"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{Workdir: "."}
	cfg.Index.DefaultT = 8
	cfg.History.Path = ""
	cfg.History.Max = 2000
	return cfg
}

// Load reads a YAML config file at path. A missing file is not an
// error; the caller gets Default() back.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}
