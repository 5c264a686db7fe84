package audit

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kastheco/ito/internal/gitutil"
)

// harnessSessionVars are checked in order; the first non-empty value wins.
var harnessSessionVars = []string{
	"ITO_HARNESS_SESSION_ID",
	"CLAUDE_SESSION_ID",
	"OPENCODE_SESSION_ID",
	"CODEX_SESSION_ID",
}

// SessionPath returns the session id file for a project state dir.
func SessionPath(itoDir string) string {
	return filepath.Join(itoDir, ".state", "audit", ".session")
}

// ResolveContext assembles the EventContext for the current invocation.
// Every field except the session id is best-effort: failures leave the
// field empty, never return an error.
func ResolveContext(itoDir string) EventContext {
	root := filepath.Dir(itoDir)
	return EventContext{
		SessionID:        ResolveSessionID(itoDir),
		HarnessSessionID: resolveHarnessSessionID(),
		Branch:           gitutil.CurrentBranch(root),
		Worktree:         gitutil.WorktreeName(root),
		Commit:           gitutil.ShortCommit(root),
	}
}

// ResolveSessionID returns the per-checkout session id, creating it on
// first use. The id lives in a gitignored file under the audit state dir
// so every process in the same checkout shares one id.
func ResolveSessionID(itoDir string) string {
	sessionFile := SessionPath(itoDir)

	if raw, err := os.ReadFile(sessionFile); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}

	id := uuid.NewString()

	// A session file that cannot be written must not block event writing.
	_ = os.MkdirAll(filepath.Dir(sessionFile), 0755)
	_ = os.WriteFile(sessionFile, []byte(id), 0644)

	return id
}

func resolveHarnessSessionID() string {
	for _, v := range harnessSessionVars {
		if val := os.Getenv(v); val != "" {
			return val
		}
	}
	return ""
}

// ResolveIdentity returns the identity recorded in the by field: git's
// user.name, falling back to $USER, formatted as @lowercase-hyphenated.
func ResolveIdentity(dir string) string {
	name := gitutil.UserName(dir)
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = "unknown"
	}
	return "@" + strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
