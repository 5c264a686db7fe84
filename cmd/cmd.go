// Package cmd implements the ito command surface. Each command is split
// into an executeXxx helper that takes an io.Writer plus plain arguments,
// and a NewXxxCmd constructor that binds the helper into cobra. The
// helpers are exported within the package for testing without cobra
// plumbing.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kastheco/ito/config"
	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/gitutil"
)

// ErrUnhealthy signals that a command completed its report but the
// project state it inspected is not clean. main translates it into exit
// code 1 without printing anything further.
var ErrUnhealthy = errors.New("unhealthy")

// ResolveProject locates the project root and its state directory for the
// current invocation. Inside a git repository the worktree's top level
// wins; outside one, the nearest ancestor of the working directory that
// contains a state dir is used.
func ResolveProject() (projectRoot, itoDir string, err error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", "", err
	}

	cfg := config.LoadConfig()
	root, gerr := gitutil.ProjectRoot(cwd)
	if gerr != nil {
		root = nearestProjectRoot(cwd, cfg)
		if root == "" {
			root = cwd
		}
	}

	name := config.ItoDirName(root, cfg)
	dir := filepath.Join(root, name)
	if info, serr := os.Stat(dir); serr != nil || !info.IsDir() {
		return "", "", fmt.Errorf("no %s directory under %s; run `ito setup` first", name, root)
	}
	return root, dir, nil
}

// emitEvent appends one event to the project's audit log with the caller
// identity and the session/git context attached.
func emitEvent(projectRoot, itoDir, entity, entityID, op string, opts ...audit.EventOption) error {
	opts = append(opts,
		audit.WithBy(audit.ResolveIdentity(projectRoot)),
		audit.WithContext(audit.ResolveContext(itoDir)),
	)
	return audit.NewFSWriter(itoDir).Append(audit.NewEvent(entity, entityID, op, opts...))
}

// nearestProjectRoot walks up from dir looking for a directory that
// contains a state dir under its configured name. Returns "" when none is
// found before the filesystem root.
func nearestProjectRoot(dir string, cfg *config.Config) string {
	for {
		name := config.ItoDirName(dir, cfg)
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
