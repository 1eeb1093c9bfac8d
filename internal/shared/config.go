package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Shelf   ShelfConfig   `toml:"shelf"`
	Run     RunConfig     `toml:"run"`
	Journal JournalConfig `toml:"journal"`
}

// ShelfConfig contains connection settings for the remote shelf surface.
type ShelfConfig struct {
	BaseURL     string `toml:"base_url"`
	HeadersPath string `toml:"headers_path"` // captured browser session (curl command file)
	Actuator    string `toml:"actuator"`     // "state", "toggle", or "" for capability probing
}

// RunConfig contains reconciliation pacing and retry defaults.
// Flag values override these per invocation.
type RunConfig struct {
	Concurrency      int     `toml:"concurrency"`
	MaxRetries       int     `toml:"max_retries"`
	RateLimit        float64 `toml:"rate_limit"` // batch starts per second
	ActuateDelayMs   int     `toml:"actuate_delay_ms"`
	PageDelayMs      int     `toml:"page_delay_ms"`
	BackoffBaseMs    int     `toml:"backoff_base_ms"`
	VerifyTimeoutMs  int     `toml:"verify_timeout_ms"`
	VerifyIntervalMs int     `toml:"verify_interval_ms"`
	LoadTimeoutMs    int     `toml:"load_timeout_ms"`
	PollIntervalMs   int     `toml:"poll_interval_ms"`
}

// JournalConfig contains run journal database settings.
type JournalConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
