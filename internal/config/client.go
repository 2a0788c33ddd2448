package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ClientConfig holds the timerctl configuration
type ClientConfig struct {
	// ServerURL is the base URL of the timer API, without the /api/v1 suffix
	ServerURL string `yaml:"server_url"`

	// Token is the bearer token sent with every request
	Token string `yaml:"token"`

	// TimeoutSeconds bounds each API round trip
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// HistoryLimit is how many finished sessions the TUI shows
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:      "http://localhost:8080",
		TimeoutSeconds: 10,
		HistoryLimit:   5,
	}
}

// DefaultClientConfigPath is ~/.config/timerctl/config.yaml
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "timerctl.yaml"
	}
	return filepath.Join(dir, "timerctl", "config.yaml")
}

// LoadClient reads the client config from a YAML file, falling back to
// defaults, then applies TIMERCTL_* environment overrides.
func LoadClient(path string) (*ClientConfig, error) {
	godotenv.Load()

	cfg := DefaultClientConfig()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ServerURL = getEnvOrDefault("TIMERCTL_SERVER", cfg.ServerURL)
	cfg.Token = getEnvOrDefault("TIMERCTL_TOKEN", cfg.Token)
	cfg.TimeoutSeconds = getEnvAsIntOrDefault("TIMERCTL_TIMEOUT_SECONDS", cfg.TimeoutSeconds)

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}

	return cfg, nil
}

// Timeout returns TimeoutSeconds as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
