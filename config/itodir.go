package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DefaultItoDirName is the working directory name used when nothing
// overrides it.
const DefaultItoDirName = ".ito"

// Repo-level override files, checked in the project root. The dotfile
// variant wins when both are present.
const (
	repoConfigFileName    = "ito.json"
	repoDotConfigFileName = ".ito.json"
)

// ItoDirName resolves the working directory name for a project root.
// Precedence: repo-level .ito.json, then ito.json, then the global
// config's projectPath, then ".ito". cfg may be nil to skip the global
// step. Invalid override values fall through to the next source.
func ItoDirName(projectRoot string, cfg *Config) string {
	if name := repoProjectPathOverride(projectRoot); name != "" {
		return name
	}

	if cfg != nil {
		if name := sanitizeItoDirName(cfg.ProjectPath); name != "" {
			return name
		}
	}

	return DefaultItoDirName
}

// ItoDir returns the full working directory path for a project root.
func ItoDir(projectRoot string, cfg *Config) string {
	return filepath.Join(projectRoot, ItoDirName(projectRoot, cfg))
}

// StateDir returns the per-checkout state directory inside itoDir.
func StateDir(itoDir string) string {
	return filepath.Join(itoDir, ".state")
}

// ChangesDir returns the change workspace directory inside itoDir.
func ChangesDir(itoDir string) string {
	return filepath.Join(itoDir, "changes")
}

// ArchiveDir returns the archived-changes directory inside itoDir.
func ArchiveDir(itoDir string) string {
	return filepath.Join(itoDir, "changes", "archive")
}

func repoProjectPathOverride(projectRoot string) string {
	out := ""
	for _, name := range []string{repoConfigFileName, repoDotConfigFileName} {
		data, err := os.ReadFile(filepath.Join(projectRoot, name))
		if err != nil {
			continue
		}
		var override struct {
			ProjectPath string `json:"projectPath"`
		}
		if err := json.Unmarshal(data, &override); err != nil {
			continue
		}
		if p := sanitizeItoDirName(override.ProjectPath); p != "" {
			out = p
		}
	}
	return out
}

// sanitizeItoDirName rejects values that would escape the project root
// or produce unreasonable paths. Returns "" for invalid input.
func sanitizeItoDirName(input string) string {
	input = strings.TrimSpace(input)
	if input == "" || len(input) > 128 {
		return ""
	}
	if strings.ContainsAny(input, `/\`) || strings.Contains(input, "..") {
		return ""
	}
	if filepath.IsAbs(input) {
		return ""
	}
	return input
}
