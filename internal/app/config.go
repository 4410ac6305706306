package app

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Sources are configuration files or directories, in merge order.
	Sources []string
	// Home is the root of the configHome, dataHome, cacheHome and logHome
	// directories. Empty disables the home properties.
	Home string
	// EnvFile is an optional .env file consulted after the home properties.
	EnvFile string
	// EnvPrefix qualifies environment variable lookups.
	EnvPrefix string
	// Properties override every built-in property source. Resolvers passed
	// with WithResolvers are consulted before them.
	Properties map[string]string
	// KeepUnresolved leaves unknown ${...} references in place.
	KeepUnresolved bool

	LogFormat string
	LogLevel  string
}

// DefaultEnvPrefix is used when Config.EnvPrefix is empty.
const DefaultEnvPrefix = "CONFLUX_"

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("at least one configuration source is required")
	}
	for _, s := range cfg.Sources {
		if strings.TrimSpace(s) == "" {
			return nil, errors.New("configuration source paths cannot be empty")
		}
	}
	for k := range cfg.Properties {
		if k == "" {
			return nil, errors.New("property names cannot be empty")
		}
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if cfg.EnvPrefix == "" {
		cfg.EnvPrefix = DefaultEnvPrefix
	}
	return &cfg, nil
}
