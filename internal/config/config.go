// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// BaseURL is the public origin of this service, used to build the
	// gateway callback URL and download links.
	BaseURL string `yaml:"base_url"`
	// Browser-facing pages the redirect endpoint sends users to.
	SuccessURL string `yaml:"success_url"`
	PendingURL string `yaml:"pending_url"`
	ErrorURL   string `yaml:"error_url"`
	// AdminAPIKey guards operator-only routes (stale payment report).
	AdminAPIKey string `yaml:"admin_api_key"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	// Credentials live in the settings store; only call behavior is configured here.
	Timeout           time.Duration `yaml:"timeout"`             // bound on every outbound gateway call
	StalePendingAfter time.Duration `yaml:"stale_pending_after"` // reporting window for stuck payments
}

type SecurityConfig struct {
	DownloadTokenSecret string        `yaml:"download_token_secret"` // HMAC key for download tokens
	LicenseSecret       string        `yaml:"license_secret"`        // HMAC key for license derivation
	DownloadTokenTTL    time.Duration `yaml:"download_token_ttl"`
}

type CatalogConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type MailConfig struct {
	Endpoint string `yaml:"endpoint"` // transactional mail API; empty disables sending
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"` // root of protected resource files
}

type RateLimitConfig struct {
	CheckoutPerMinute int `yaml:"checkout_per_minute"`
	DownloadPerMinute int `yaml:"download_per_minute"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Security  SecurityConfig  `yaml:"security"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Mail      MailConfig      `yaml:"mail"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Gateway.StalePendingAfter <= 0 {
		cfg.Gateway.StalePendingAfter = 30 * time.Minute
	}
if cfg.Security.DownloadTokenTTL <= 0 {
		cfg.Security.DownloadTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.RateLimit.CheckoutPerMinute <= 0 {
		cfg.RateLimit.CheckoutPerMinute = 10
	}
	if cfg.RateLimit.DownloadPerMinute <= 0 {
		cfg.RateLimit.DownloadPerMinute = 30
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.BaseURL == "" {
		return nil, errors.New("server.base_url is required")
	}
	if cfg.Security.DownloadTokenSecret == "" {
		return nil, errors.New("security.download_token_secret is required")
	}
	if cfg.Security.LicenseSecret == "" {
		return nil, errors.New("security.license_secret is required")
	}
	if cfg.Catalog.BaseURL == "" {
		return nil, errors.New("catalog.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
