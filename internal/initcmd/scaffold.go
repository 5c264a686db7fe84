// Package initcmd scaffolds the on-disk project layout for ito setup.
package initcmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kastheco/ito/internal/audit"
)

// Result tracks one scaffolded path for summary display.
type Result struct {
	Path    string
	Created bool // true=created, false=skipped (already existed)
}

// Run creates the project layout under projectDir: the change workspace,
// its archive, and the audit state directory, plus the session file and a
// .gitignore rule keeping per-checkout state out of version control.
// Existing paths are left untouched and reported as skipped.
func Run(projectDir, itoDirName string) ([]Result, error) {
	itoDir := filepath.Join(projectDir, itoDirName)

	var results []Result
	for _, rel := range []string{
		filepath.Join(itoDirName, "changes"),
		filepath.Join(itoDirName, "changes", "archive"),
		filepath.Join(itoDirName, ".state", "audit"),
	} {
		path := filepath.Join(projectDir, rel)
		created, err := ensureDir(path)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Path: rel, Created: created})
	}

	sessionPath := audit.SessionPath(itoDir)
	_, statErr := os.Stat(sessionPath)
	audit.ResolveSessionID(itoDir)
	results = append(results, Result{
		Path:    relPath(projectDir, sessionPath),
		Created: os.IsNotExist(statErr),
	})

	added, err := ensureGitignoreLine(projectDir, itoDirName+"/.state/")
	if err != nil {
		return nil, err
	}
	results = append(results, Result{Path: ".gitignore", Created: added})

	return results, nil
}

func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	return true, nil
}

// ensureGitignoreLine appends entry to projectDir/.gitignore unless an
// exact line already matches. Existing content is preserved as-is.
func ensureGitignoreLine(projectDir, entry string) (bool, error) {
	path := filepath.Join(projectDir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("read %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(entry+"\n"), 0o644); err != nil {
			return false, fmt.Errorf("write %s: %w", path, err)
		}
		return true, nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}

	s := string(data)
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	s += entry + "\n"
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return rel
}
