package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kastheco/ito/log"
)

const (
	ConfigFileName = "config.json"
	defaultHarness = "claude"
)

// harnessCandidates are probed in order when no default harness is
// configured; the first one found on this machine wins.
var harnessCandidates = []string{"claude", "opencode", "codex"}

var aliasRegex = regexp.MustCompile(`(?:aliased to|->|=)\s*([^\s]+)`)

// GetConfigDir returns the path to the application's configuration
// directory, XDG-compliant ~/.config/ito/. A home-level .ito is never
// touched: that name is a project state dir, not a legacy config dir.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ito"), nil
}

// Config represents the application configuration
type Config struct {
	// ProjectPath overrides the per-repo working directory name
	// (defaults to ".ito"). Repo-level config files take precedence.
	ProjectPath string `json:"projectPath,omitempty"`
	// DefaultHarness is the coding harness assumed when none is detected.
	DefaultHarness string `json:"default_harness"`
	// StreamPollInterval is the interval (ms) at which audit stream polls for new events.
	StreamPollInterval int `json:"stream_poll_interval"`
	// WorktreesEnabled controls whether audit commands look at sibling
	// git worktrees. Defaults to true when not set.
	WorktreesEnabled *bool `json:"worktrees_enabled,omitempty"`
	// TelemetryEnabled controls crash reporting and execution logging.
	// Defaults to true when not set.
	TelemetryEnabled *bool `json:"telemetry_enabled,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	harness, err := DetectHarness()
	if err != nil {
		log.WarningLog.Printf("failed to detect harness: %v", err)
		harness = defaultHarness
	}

	trueVal := true
	return &Config{
		DefaultHarness:     harness,
		StreamPollInterval: 500,
		WorktreesEnabled:   &trueVal,
	}
}

// AreWorktreesEnabled returns whether sibling-worktree discovery is enabled.
// Defaults to true when the field is not set.
func (c *Config) AreWorktreesEnabled() bool {
	if c.WorktreesEnabled == nil {
		return true
	}
	return *c.WorktreesEnabled
}

// IsTelemetryEnabled returns whether telemetry is enabled.
// Defaults to true when the field is not set.
func (c *Config) IsTelemetryEnabled() bool {
	if c.TelemetryEnabled == nil {
		return true
	}
	return *c.TelemetryEnabled
}

// DetectHarness returns the name of the first coding harness found on
// this machine. For each candidate it checks shell alias resolution
// first, then PATH lookup.
func DetectHarness() (string, error) {
	for _, name := range harnessCandidates {
		if _, err := findCommand(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no harness command found in aliases or PATH (tried %s)",
		strings.Join(harnessCandidates, ", "))
}

func findCommand(name string) (string, error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash" // Default to bash if SHELL is not set
	}

	// Force the shell to load the user's profile and then run the command
	// For zsh, source .zshrc; for bash, source .bashrc
	var shellCmd string
	if strings.Contains(shell, "zsh") {
		shellCmd = fmt.Sprintf("source ~/.zshrc &>/dev/null || true; which %s", name)
	} else if strings.Contains(shell, "bash") {
		shellCmd = fmt.Sprintf("source ~/.bashrc &>/dev/null || true; which %s", name)
	} else {
		shellCmd = fmt.Sprintf("which %s", name)
	}

	cmd := exec.Command(shell, "-c", shellCmd)
	output, err := cmd.Output()
	if err == nil && len(output) > 0 {
		path := parseCommandOutput(string(output))
		if path != "" {
			return path, nil
		}
	}

	// Otherwise, try to find in PATH directly
	commandPath, err := exec.LookPath(name)
	if err == nil {
		return commandPath, nil
	}

	return "", fmt.Errorf("%s command not found in aliases or PATH", name)
}

func parseCommandOutput(output string) string {
	path := strings.TrimSpace(output)
	if path == "" {
		return ""
	}

	matches := aliasRegex.FindStringSubmatch(path)
	if len(matches) > 1 {
		return matches[1]
	}

	return path
}

func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		log.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create and save default config if file doesn't exist
			defaultCfg := DefaultConfig()
			if saveErr := saveConfig(defaultCfg); saveErr != nil {
				log.WarningLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}

		log.WarningLog.Printf("failed to get config file: %v", err)
		return DefaultConfig()
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		log.ErrorLog.Printf("failed to parse config file: %v", err)
		return DefaultConfig()
	}

	// Overlay TOML config if it exists (TOML is authority for the fields it sets)
	tomlResult, tomlErr := LoadTOMLConfig()
	if tomlErr != nil {
		log.WarningLog.Printf("failed to load TOML config: %v", tomlErr)
	} else if tomlResult != nil {
		if tomlResult.ProjectPath != "" {
			config.ProjectPath = tomlResult.ProjectPath
		}
		if tomlResult.DefaultHarness != "" {
			config.DefaultHarness = tomlResult.DefaultHarness
		}
		if tomlResult.Stream.PollIntervalMS > 0 {
			config.StreamPollInterval = tomlResult.Stream.PollIntervalMS
		}
		if tomlResult.Worktrees.Enabled != nil {
			config.WorktreesEnabled = tomlResult.Worktrees.Enabled
		}
		if tomlResult.TelemetryEnabled != nil {
			config.TelemetryEnabled = tomlResult.TelemetryEnabled
		}
	}

	return &config
}

// saveConfig saves the configuration to disk
func saveConfig(config *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveConfig exports the saveConfig function for use by other packages
func SaveConfig(config *Config) error {
	return saveConfig(config)
}
