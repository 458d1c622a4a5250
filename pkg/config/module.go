package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

// Every environment override starts with this, e.g. RENDERER_SERVER_PORT.
const ENV_PREFIX = "RENDERER_"

func decode(config *Config, data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(config)
	if errors.Is(err, io.EOF) {
		// Empty file
		return nil
	}
	return err
}

func readFile(config *Config, path string) error {
	// Check if this is a valid file
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("does not exist")
	}

	switch filepath.Ext(path) {
	// JSON documents are valid YAML
	case ".json", ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return decode(config, data)
	}

	return fmt.Errorf(
		"not in a valid format",
	)
}

// Process starts from the default configuration, applies the provided
// configuration files in order and then any environment overrides. Later
// files win over earlier ones.
func Process(configPaths []string) (*Config, error) {
	config := Config{}

	err := decode(&config, DEFAULT)
	if err != nil {
		return nil, fmt.Errorf(
			"invalid default config file: %v",
			err,
		)
	}

	for _, path := range configPaths {
		err := readFile(&config, path)
		if err != nil {
			return nil, fmt.Errorf(
				"could not process config file %s: %v",
				path,
				err,
			)
		}
	}

	err = env.ParseWithOptions(&config, env.Options{
		Prefix: ENV_PREFIX,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"could not read environment: %v",
			err,
		)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Content.MapsDir == "" || c.Content.ConfigsDir == "" || c.Content.FiltersDir == "" {
		return fmt.Errorf("content directories must be set")
	}

	if len(c.Content.Extensions) == 0 {
		return fmt.Errorf("content.extensions must not be empty")
	}

	switch c.Store.Backend {
	case StoreBackendFS:
	case StoreBackendRedis:
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address must be set")
		}
	case StoreBackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be set")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Gateway.UpdatesPerSecond < 0 || c.Gateway.UpdateBurst < 0 {
		return fmt.Errorf("gateway rate limit must not be negative")
	}

	if c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("gateway.writeTimeout must be positive")
	}

	if c.Gateway.SendBuffer <= 0 {
		return fmt.Errorf("gateway.sendBuffer must be positive")
	}

	return nil
}

func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
