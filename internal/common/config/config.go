// Package config provides configuration management for deskd.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for deskd.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Bus     BusConfig     `mapstructure:"bus"`
	Storage StorageConfig `mapstructure:"storage"`
	Apps    AppsConfig    `mapstructure:"apps"`
	AppBus  AppBusConfig  `mapstructure:"appbus"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// BusConfig holds host event bus configuration. An empty URL selects the
// in-memory bus; a NATS URL selects the distributed backend.
type BusConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// StorageConfig holds the namespaced key-value store configuration.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// AppsConfig holds app directory configuration.
type AppsConfig struct {
	ManifestDir string `mapstructure:"manifestDir"` // directory scanned for app manifests
	DataRoot    string `mapstructure:"dataRoot"`    // per-app sandboxed file roots live under here
}

// AppBusConfig holds inter-app channel broker configuration.
type AppBusConfig struct {
	EndpointBuffer int `mapstructure:"endpointBuffer"` // frames buffered per endpoint direction
	RequestTimeout int `mapstructure:"requestTimeout"` // default endpoint request timeout, seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns the endpoint request timeout as a
// time.Duration.
func (a *AppBusConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("DESKD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8320)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Bus defaults - empty URL means use in-memory event bus
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.clientId", "deskd-host")
	v.SetDefault("bus.maxReconnects", 10)

	// Storage defaults
	v.SetDefault("storage.path", "./deskd.db")

	// Apps defaults
	v.SetDefault("apps.manifestDir", "./apps")
	v.SetDefault("apps.dataRoot", "./appdata")

	// AppBus defaults
	v.SetDefault("appbus.endpointBuffer", 64)
	v.SetDefault("appbus.requestTimeout", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix DESKD_ with snake_case
// naming. The config file is named config.yaml and placed in the current
// directory or /etc/deskd/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DESKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion, so
	// keys where env var naming differs from config key naming are bound
	// explicitly.
	_ = v.BindEnv("apps.manifestDir", "DESKD_APPS_MANIFEST_DIR")
	_ = v.BindEnv("apps.dataRoot", "DESKD_APPS_DATA_ROOT")
	_ = v.BindEnv("appbus.endpointBuffer", "DESKD_APPBUS_ENDPOINT_BUFFER")
	_ = v.BindEnv("appbus.requestTimeout", "DESKD_APPBUS_REQUEST_TIMEOUT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/deskd/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}

	if cfg.AppBus.EndpointBuffer <= 0 {
		errs = append(errs, "appbus.endpointBuffer must be positive")
	}
	if cfg.AppBus.RequestTimeout <= 0 {
		errs = append(errs, "appbus.requestTimeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
