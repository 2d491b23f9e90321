// Package config loads server configuration from a YAML file and
// BINDLE_-prefixed environment variables, env taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bindlekit/bindle/pkg/core"
)

const (
	// DefaultConfigPath is the default path to the config file
	DefaultConfigPath = "~/.bindle/config.yaml"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "BINDLE_"
)

// Config holds all configuration for the bindle server.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Search  SearchConfig  `koanf:"search"`
}

type ServerConfig struct {
	// Address to listen on
	Addr string `koanf:"addr"`
}

type StorageConfig struct {
	// Registry data directory
	Dir string `koanf:"dir"`

	// At-rest transform for parcel content: "none" or "zstd"
	Transform string `koanf:"transform"`

	// zstd level when the transform is "zstd"
	ZstdLevel int `koanf:"zstd_level"`

	// Maximum accepted parcel size in bytes; 0 means unlimited
	MaxParcelBytes uint64 `koanf:"max_parcel_bytes"`
}

type SearchConfig struct {
	DefaultLimit uint8 `koanf:"default_limit"`
	MaxLimit     uint8 `koanf:"max_limit"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Storage: StorageConfig{
			Dir:       "~/.bindle/data",
			Transform: "none",
			ZstdLevel: 3,
		},
		Search: SearchConfig{
			DefaultLimit: 50,
			MaxLimit:     100,
		},
	}
}

// Load reads configuration from the given path (the default path when empty)
// and applies environment overrides. A missing config file is not an error;
// defaults apply.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath
	}
	path = expandHome(path)

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// BINDLE_SERVER_ADDR overrides server.addr, and so on.
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("loading environment config: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	return cfg, nil
}

// RegistryConfig maps the server configuration onto the engine's config.
func (c Config) RegistryConfig() core.Config {
	return core.Config{
		Dir: c.Storage.Dir,
		Parcel: core.ParcelConfig{
			MaxParcelBytes: c.Storage.MaxParcelBytes,
		},
		Transform: core.TransformConfig{
			Name:      c.Storage.Transform,
			ZstdLevel: c.Storage.ZstdLevel,
		},
		Search: core.SearchConfig{
			DefaultLimit: c.Search.DefaultLimit,
			MaxLimit:     c.Search.MaxLimit,
		},
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
