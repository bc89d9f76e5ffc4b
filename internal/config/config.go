// Package config provides configuration loading for remedyd.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration for the engine.
type Config struct {
	Server struct {
		ListenAddr string `koanf:"listen_addr"`
	} `koanf:"server"`

	Database struct {
		Path string `koanf:"path"`
	} `koanf:"database"`

	Engine struct {
		// ObservationWindow is the number of consecutive passing evaluations
		// a run needs before ramping or passing.
		ObservationWindow int           `koanf:"observation_window"`
		EvaluateInterval  time.Duration `koanf:"evaluate_interval"`
		ProviderTimeout   time.Duration `koanf:"provider_timeout"`
	} `koanf:"engine"`

	NATS struct {
		// URL enables timeline fan-out when set; empty disables it.
		URL string `koanf:"url"`
	} `koanf:"nats"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`
}

// Load reads configuration from an optional YAML file, then overrides with
// REMEDY_-prefixed environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (REMEDY_SERVER_LISTEN_ADDR, REMEDY_NATS_URL, ...)
//  2. YAML config file
//  3. Defaults
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// REMEDY_ENGINE_PROVIDER_TIMEOUT -> engine.provider_timeout
	err := k.Load(env.Provider("REMEDY_", ".", func(s string) string {
		key := strings.TrimPrefix(s, "REMEDY_")
		key = strings.ToLower(key)
		for _, section := range []string{"server", "database", "engine", "nats", "log"} {
			if strings.HasPrefix(key, section+"_") {
				return section + "." + strings.TrimPrefix(key, section+"_")
			}
		}
		return key
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "remedy.db"
	}
	if c.Engine.ObservationWindow == 0 {
		c.Engine.ObservationWindow = 3
	}
	if c.Engine.EvaluateInterval == 0 {
		c.Engine.EvaluateInterval = 15 * time.Second
	}
	if c.Engine.ProviderTimeout == 0 {
		c.Engine.ProviderTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Engine.ObservationWindow < 1 {
		return fmt.Errorf("engine.observation_window must be >= 1, got %d", c.Engine.ObservationWindow)
	}
	if c.Engine.EvaluateInterval < time.Second {
		return fmt.Errorf("engine.evaluate_interval must be >= 1s, got %s", c.Engine.EvaluateInterval)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
