package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML file read before flags are applied.
type Config struct {
	APIURL    string `yaml:"api_url"`
	StreamURL string `yaml:"stream_url"`
	Token     string `yaml:"token"`
	Project   string `yaml:"project"`
}

func defaultConfig() Config {
	return Config{
		APIURL:    "http://localhost:8080",
		StreamURL: "ws://localhost:9000/ws",
	}
}

// loadConfig reads path over the defaults. A missing file is not an error
// unless the path was given explicitly. BOARD_TOKEN fills in a missing token.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("BOARD_TOKEN")
	}
	return cfg, nil
}
