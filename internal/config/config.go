package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// StorageBackendFile keeps each collection in its own file under data_root_path
	StorageBackendFile = "file"
	// StorageBackendSQLite keeps all collections in a single sqlite key-value table
	StorageBackendSQLite = "sqlite"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	SentryEnabled bool `toml:"sentry_enabled"`

	// storage: file | sqlite
	StorageBackend string `toml:"storage_backend"`
	DataRootPath   string `toml:"data_root_path"`
	SQLitePath     string `toml:"sqlite_path"`

	// insight generation api
	InsightApiUrl string `toml:"insight_api_url"`
	InsightModel  string `toml:"insight_model"`

	// prometheus metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlFile Toml
	if _, err := toml.DecodeFile(path, &tomlFile); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlFile.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env %s is empty", env)
	}

	cfg.Environment = env

	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageBackendFile
	}
	if cfg.StorageBackend != StorageBackendFile && cfg.StorageBackend != StorageBackendSQLite {
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}

	return cfg, nil
}
