// ABOUTME: Configuration loading and parsing for the agent console.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete console configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
	Stub    StubConfig    `yaml:"stub"`
}

// ServerConfig holds the backend endpoint configuration.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8000
	BaseURL string `yaml:"base_url"`
}

// AuthConfig holds credential source configuration.
type AuthConfig struct {
	// TokenEnv names the environment variable checked first for the bearer token.
	TokenEnv string `yaml:"token_env"`
	// TokenFile is the fallback token file path.
	TokenFile string `yaml:"token_file"`
}

// StreamConfig holds event stream tuning.
type StreamConfig struct {
	ReconnectDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReconnectDelayRaw string `yaml:"reconnect_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StubConfig holds settings for the local stub backend.
type StubConfig struct {
	HTTPAddr     string `yaml:"http_addr"`
	DatabasePath string `yaml:"database_path"`
	JWTSecret    string `yaml:"jwt_secret"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{BaseURL: "http://localhost:8000"},
		Auth:   AuthConfig{TokenEnv: "KUNJAL_TOKEN"},
		Stream: StreamConfig{ReconnectDelay: time.Second},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Stub: StubConfig{
			HTTPAddr:     "localhost:8000",
			DatabasePath: "kunjal-stub.db",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values. Fields not present
// in the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path, or returns defaults when the file
// does not exist. Any other failure is still an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the conventional config file location.
// Priority: KUNJAL_CONFIG env var > $XDG_CONFIG_HOME/kunjal/console.yaml >
// ~/.config/kunjal/console.yaml.
func DefaultPath() string {
	if envPath := os.Getenv("KUNJAL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "kunjal", "console.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Stream.ReconnectDelay < 0 {
		return fmt.Errorf("stream.reconnect_delay must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Stream.ReconnectDelayRaw != "" {
		d, err := time.ParseDuration(cfg.Stream.ReconnectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", cfg.Stream.ReconnectDelayRaw, err)
		}
		cfg.Stream.ReconnectDelay = d
	}
	return nil
}
