package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Security  SecurityConfig  `yaml:"security"`
	Sync      SyncConfig      `yaml:"sync"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SecurityConfig struct {
	EventRetentionDays int    `yaml:"event_retention_days"`
	GeoEndpoint        string `yaml:"geo_endpoint"`
	GeoTimeoutSeconds  int    `yaml:"geo_timeout_seconds"`
}

type SyncConfig struct {
	FullIntervalMinutes  int `yaml:"full_interval_minutes"`
	LightIntervalMinutes int `yaml:"light_interval_minutes"`
}

type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type RateLimitConfig struct {
	UnlockPerMinute int `yaml:"unlock_per_minute"`
}

// Default returns the built-in configuration used when no config file
// is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, Env: "production"},
		Database: DatabaseConfig{Path: "eclosion.db"},
		Security: SecurityConfig{
			EventRetentionDays: 90,
			GeoEndpoint:        "http://ip-api.com/json",
			GeoTimeoutSeconds:  5,
		},
		Sync: SyncConfig{
			FullIntervalMinutes:  60,
			LightIntervalMinutes: 15,
		},
		RateLimit: RateLimitConfig{UnlockPerMinute: 5},
	}
}

// Load reads the YAML config at path (missing file falls back to
// defaults) and then applies environment overrides. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ECLOSION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ECLOSION_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ECLOSION_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("ECLOSION_UPSTREAM_TOKEN"); v != "" {
		cfg.Upstream.Token = v
	}
	if v := os.Getenv("ECLOSION_GEO_ENDPOINT"); v != "" {
		cfg.Security.GeoEndpoint = v
	}
	if v := os.Getenv("ECLOSION_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Security.EventRetentionDays = days
		}
	}
}
