// Package config provides the JSON configuration file and its
// validation for apexdns. All fields have working defaults; an absent
// config path yields a default configuration serving on port 53.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       53,
			WorkersRaw: "auto",
			EnableTCP:  true,
		},
		Zone: ZoneConfig{
			File: "root.zone",
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		QueryLog: QueryLogConfig{
			Path:          "querylog.db",
			QueueSize:     4096,
			FlushInterval: "5s",
		},
	}
	_ = cfg.Validate()
	return cfg
}

// Load reads a JSON config from path, or returns Default() when path
// is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveConfigPath picks the explicit path, then the APEXDNS_CONFIG
// environment variable, then none.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv("APEXDNS_CONFIG")
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	if cfg.Zone.File == "" {
		return errors.New("zone.file must be set")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	if cfg.QueryLog.QueueSize <= 0 {
		cfg.QueryLog.QueueSize = 4096
	}
	if cfg.QueryLog.FlushInterval == "" {
		cfg.QueryLog.FlushInterval = "5s"
	}
	if cfg.QueryLog.Enabled && cfg.QueryLog.Path == "" {
		return errors.New("query_log.path must be set when enabled")
	}

	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
	return nil
}

// parseWorkers converts the workers string to a WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}
