package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the client configuration. Values are resolved in order:
// YAML config file, then SPARRING_* environment variables.
type Config struct {
	ServerURL  string `yaml:"server_url,omitempty"`
	ListenAddr string `yaml:"listen_addr,omitempty"`
	DBPath     string `yaml:"db_path,omitempty"`
}

// DefaultPath returns the config file path, honoring SPARRING_CONFIG_PATH.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("SPARRING_CONFIG_PATH")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sparring", "config.yaml"), nil
}

// Load reads the config from the default path and applies environment
// overrides. A missing file yields defaults, not an error.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SPARRING_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("SPARRING_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SPARRING_DB_PATH"); v != "" {
		c.DBPath = v
	}
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8000"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:7880"
	}
	if c.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DBPath = filepath.Join(home, ".config", "sparring", "client.db")
		} else {
			c.DBPath = "client.db"
		}
	}
}

// APIBase returns the REST base URL ("/debates" endpoints hang off it).
func (c *Config) APIBase() string {
	return strings.TrimSuffix(c.ServerURL, "/")
}

// WSBase returns the WebSocket base URL derived from the server URL.
func (c *Config) WSBase() string {
	base := strings.TrimSuffix(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
