// Package config manages accmove configuration and the .accmove directory
// structure. It handles loading, saving, and initializing the workspace
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	AccmoveDir   = ".accmove"
	ConfigFile   = "config"
	DatabaseFile = "accmove.db"
	HistoryFile  = "history.db"

	// DefaultBaseURL is the production Autodesk Platform Services endpoint.
	DefaultBaseURL = "https://developer.api.autodesk.com"

	// DefaultCallbackURL must match the callback registered for the app.
	DefaultCallbackURL = "http://localhost:8721/oauth/callback"
)

// Config represents the accmove workspace configuration.
type Config struct {
	ClientID    string `toml:"client_id"`
	CallbackURL string `toml:"callback_url"`
	BaseURL     string `toml:"base_url"`
	Activity    string `toml:"activity,omitempty"` // fully qualified apply activity, set by provision
	path        string // path to .accmove directory
}

// FindRoot finds the .accmove directory by walking up from the current directory.
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, AccmoveDir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not an accmove workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .accmove directory.
func Load() (*Config, error) {
	path, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from an explicit .accmove directory.
func LoadFrom(path string) (*Config, error) {
	configPath := filepath.Join(path, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.path = path
	return &cfg, nil
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Path returns the path to the .accmove directory.
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the bbolt session database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// HistoryPath returns the path to the sqlite save history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.path, HistoryFile)
}

// Initialize creates a new .accmove directory with initial configuration.
func Initialize(clientID, callbackURL, baseURL string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(cwd, AccmoveDir)

	// Check if already initialized
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("accmove workspace already exists")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .accmove directory: %w", err)
	}

	if callbackURL == "" {
		callbackURL = DefaultCallbackURL
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg := &Config{
		ClientID:    clientID,
		CallbackURL: callbackURL,
		BaseURL:     baseURL,
		path:        path,
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(path)
		return nil, err
	}

	return cfg, nil
}
