package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/SupperZum/iavl"
)

// Config holds the CLI settings; every field can also be set by flag, and
// flags win over the file.
type Config struct {
	DB          string `toml:"db"`
	Store       string `toml:"store"`
	CacheSize   int    `toml:"cache-size"`
	LogLevel    string `toml:"log-level"`
	MetricsAddr string `toml:"metrics-addr"`
}

func DefaultConfig() Config {
	return Config{
		CacheSize: iavl.DefaultCacheSize,
		LogLevel:  "info",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s, %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return cfg, nil
}
