package config

import (
	"time"
)

const (
	StoreBackendFS     = "fs"
	StoreBackendRedis  = "redis"
	StoreBackendSQLite = "sqlite"
)

type ServerConfig struct {
	Address         string        `yaml:"address" env:"ADDRESS"`
	Port            int           `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	StaticDir       string        `yaml:"staticDir" env:"STATIC_DIR"`
}

type ContentConfig struct {
	MapsDir    string   `yaml:"mapsDir" env:"MAPS_DIR"`
	ConfigsDir string   `yaml:"configsDir" env:"CONFIGS_DIR"`
	FiltersDir string   `yaml:"filtersDir" env:"FILTERS_DIR"`
	Extensions []string `yaml:"extensions" env:"EXTENSIONS" envSeparator:","`
}

type RedisConfig struct {
	Address  string        `yaml:"address" env:"ADDRESS"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Expiry   time.Duration `yaml:"expiry" env:"EXPIRY"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type StoreConfig struct {
	Backend string       `yaml:"backend" env:"BACKEND"`
	Redis   RedisConfig  `yaml:"redis" envPrefix:"REDIS_"`
	SQLite  SQLiteConfig `yaml:"sqlite" envPrefix:"SQLITE_"`
}

type GatewayConfig struct {
	UpdatesPerSecond float64       `yaml:"updatesPerSecond" env:"UPDATES_PER_SECOND"`
	UpdateBurst      int           `yaml:"updateBurst" env:"UPDATE_BURST"`
	WriteTimeout     time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	SendBuffer       int           `yaml:"sendBuffer" env:"SEND_BUFFER"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Content ContentConfig `yaml:"content" envPrefix:"CONTENT_"`
	Store   StoreConfig   `yaml:"store" envPrefix:"STORE_"`
	Gateway GatewayConfig `yaml:"gateway" envPrefix:"GATEWAY_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}
