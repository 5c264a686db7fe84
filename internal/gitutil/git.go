// Package gitutil wraps the git queries the rest of the CLI needs:
// repository detection, branch and commit resolution, worktree
// identification, and the configured user name.
//
// Repository inspection goes through go-git so no subprocess is needed on
// the hot paths. Worktree introspection shells out to git because the
// common-dir plumbing has no go-git equivalent.
package gitutil

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
)

func open(dir string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
}

// IsGitRepo reports whether dir is inside a git repository. Linked
// worktrees count.
func IsGitRepo(dir string) bool {
	_, err := open(dir)
	return err == nil
}

// ProjectRoot returns the top-level directory of the worktree containing
// dir.
func ProjectRoot(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the short branch name for dir, or "" when HEAD is
// detached or dir is not a repository.
func CurrentBranch(dir string) string {
	repo, err := open(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// ShortCommit returns the abbreviated (8 character) HEAD commit hash, or
// "" when there is no commit yet.
func ShortCommit(dir string) string {
	repo, err := open(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()[:8]
}

// UserName returns git's configured user.name, preferring repository
// configuration, then global, then system. Empty when unset.
func UserName(dir string) string {
	if repo, err := open(dir); err == nil {
		if cfg, err := repo.ConfigScoped(gitconfig.SystemScope); err == nil && cfg.User.Name != "" {
			return cfg.User.Name
		}
	}
	// Outside a repository the global config still applies.
	out, err := exec.Command("git", "-C", dir, "config", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// WorktreeName returns the basename of the current linked worktree, or ""
// when dir is in the main worktree or not a repository. A linked worktree
// is detected by its git dir differing from the repository common dir.
func WorktreeName(dir string) string {
	gitDir := resolveAgainst(dir, revParse(dir, "--git-dir"))
	commonDir := resolveAgainst(dir, revParse(dir, "--git-common-dir"))
	if gitDir == "" || commonDir == "" || gitDir == commonDir {
		return ""
	}
	top := revParse(dir, "--show-toplevel")
	if top == "" {
		return ""
	}
	return filepath.Base(top)
}

func revParse(dir, arg string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", arg).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// resolveAgainst absolutizes p relative to dir and resolves symlinks so
// two spellings of the same directory compare equal.
func resolveAgainst(dir, p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}
