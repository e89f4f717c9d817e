package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/localrivet/configurator"
)

// Config represents the toolhost configuration. It is built once by
// the initializer and threaded through explicitly; nothing in the core
// reads ambient process state.
type Config struct {
	// Services contains service-discovery configuration.
	Services struct {
		// Root is the directory whose subdirectories are the
		// discoverable services. Each holds that service's tool
		// schema document.
		Root string `json:"root" env:"SERVICES_ROOT" validate:"required"`

		// BasePort is the port assigned to the alphabetically first
		// discoverable service; later services get consecutive ports.
		BasePort int `json:"base_port" env:"BASE_PORT" validate:"min:1"`
	} `json:"services"`

	// Server contains listener configuration.
	Server struct {
		// Host is the interface the listener binds and the host
		// advertised in the client config document.
		Host string `json:"host" env:"HOST" validate:"required"`
	} `json:"server"`

	// Announce contains client-config publication settings.
	Announce struct {
		// ClientConfigPath is the JSON document client endpoints are
		// merged into.
		ClientConfigPath string `json:"client_config_path" env:"CLIENT_CONFIG_PATH"`
	} `json:"announce"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level to display ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format to use ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	configPath string `json:"-"`
}

// Default configuration values
const (
	DefaultConfigFilename   = ".toolhostconfig"
	DefaultServicesRoot     = "services"
	DefaultBasePort         = 8100
	DefaultHost             = "127.0.0.1"
	DefaultClientConfigPath = ".toolhost-clients.json"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"

	// SchemaFilename is the conventional name of a service's tool
	// schema document inside its directory under Services.Root.
	SchemaFilename = "tools.json"
)

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	config := &Config{}
	config.Services.Root = DefaultServicesRoot
	config.Services.BasePort = DefaultBasePort
	config.Server.Host = DefaultHost
	config.Announce.ClientConfigPath = DefaultClientConfigPath
	config.Logging.Level = DefaultLogLevel
	config.Logging.Format = DefaultLogFormat
	return config
}

// LoadConfig loads the configuration from the default path
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename)
}

// LoadConfigWithPath loads the configuration from a specific path
func LoadConfigWithPath(configPath string) (*Config, error) {
	// Create a default logger for configuration loading
	stdLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := NewConfig()

	// Try to find config file if path is default
	if configPath == DefaultConfigFilename {
		foundPath, err := configurator.FindConfigFile(configPath)
		if err == nil {
			configPath = foundPath
			stdLogger.Debug("Found config file at " + foundPath)
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// File doesn't exist, return default config
		stdLogger.Info("Config file not found, using default configuration", "path", configPath)
		cfg.configPath = configPath
		return cfg, nil
	}

	stdLogger.Info("Loading configuration", "path", configPath)

	config := configurator.New(stdLogger).
		WithProvider(configurator.NewDefaultProvider()).
		WithProvider(configurator.NewFileProvider(configPath)).
		WithProvider(configurator.NewEnvProvider("TOOLHOST")).
		WithValidator(configurator.NewDefaultValidator())

	ctx := context.Background()
	if err := config.Load(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.configPath = configPath
	return cfg, nil
}

// SaveToFile saves the configuration to the specified file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	c.configPath = path
	return nil
}

// GetConfigPath returns the path of the currently loaded configuration file
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// SchemaPath returns the conventional location of a service's tool
// schema document.
func (c *Config) SchemaPath(service string) string {
	return filepath.Join(c.Services.Root, service, SchemaFilename)
}
