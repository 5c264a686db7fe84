package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const TOMLConfigFileName = "config.toml"

// TOMLConfig is the optional config.toml overlay. Fields set here take
// precedence over config.json.
type TOMLConfig struct {
	ProjectPath      string        `toml:"project_path,omitempty"`
	DefaultHarness   string        `toml:"default_harness,omitempty"`
	TelemetryEnabled *bool         `toml:"telemetry_enabled,omitempty"`
	Worktrees        TOMLWorktrees `toml:"worktrees,omitempty"`
	Stream           TOMLStream    `toml:"stream,omitempty"`
}

// TOMLWorktrees configures sibling-worktree discovery.
type TOMLWorktrees struct {
	Enabled *bool `toml:"enabled,omitempty"`
}

// TOMLStream configures audit stream polling.
type TOMLStream struct {
	PollIntervalMS int `toml:"poll_interval_ms,omitempty"`
}

// GetTOMLConfigPath returns the path of the config.toml overlay.
func GetTOMLConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, TOMLConfigFileName), nil
}

// LoadTOMLConfig loads the overlay from its default location.
// Returns (nil, nil) when the file does not exist.
func LoadTOMLConfig() (*TOMLConfig, error) {
	path, err := GetTOMLConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadTOMLConfigFrom(path)
}

// LoadTOMLConfigFrom loads and parses a config.toml at an explicit path.
func LoadTOMLConfigFrom(path string) (*TOMLConfig, error) {
	var tc TOMLConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &tc, nil
}

// SaveTOMLConfig writes the overlay to its default location.
func SaveTOMLConfig(tc *TOMLConfig) error {
	path, err := GetTOMLConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return SaveTOMLConfigTo(tc, path)
}

// SaveTOMLConfigTo writes the overlay to an explicit path.
func SaveTOMLConfigTo(tc *TOMLConfig, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(tc); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
