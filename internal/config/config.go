// Package config loads reasonview configuration from an optional YAML
// file overlaid with RSV_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Engine  EngineConfig  `koanf:"engine"`
	History HistoryConfig `koanf:"history"`
	Server  ServerConfig  `koanf:"server"`
}

// EngineConfig locates the upstream reasoning engine.
type EngineConfig struct {
	BaseURL string `koanf:"base_url"`
}

// HistoryConfig configures the local session log.
type HistoryConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the mock engine server.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// Load reads configuration. path may be empty to skip the file layer;
// environment variables always win over the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RSV_ENGINE__BASE_URL -> engine.base_url
	if err := k.Load(env.Provider("RSV_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RSV_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("engine.base_url") {
		k.Set("engine.base_url", "http://localhost:8000")
	}
	if !k.Exists("history.path") {
		k.Set("history.path", "./data/reasonview.db")
	}
	if !k.Exists("server.port") {
		k.Set("server.port", 8000)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
