package audit_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kastheco/ito/internal/audit"
)

// taskEvent builds a task event in the "test-change" scope with explicit
// from/to values. Empty strings leave the field unset.
func taskEvent(id, op, from, to string) audit.Event {
	opts := []audit.EventOption{
		audit.WithScope("test-change"),
		audit.WithBy("@test"),
	}
	if from != "" {
		opts = append(opts, audit.WithFrom(from))
	}
	if to != "" {
		opts = append(opts, audit.WithTo(to))
	}
	return audit.NewEvent(audit.EntityTask, id, op, opts...)
}

// rawEvent builds an event literal with full control of the timestamp.
func rawEvent(entity, id, scope, op, from, to, ts string) audit.Event {
	return audit.Event{
		Version:  audit.SchemaVersion,
		TS:       ts,
		Entity:   entity,
		EntityID: id,
		Scope:    scope,
		Op:       op,
		From:     from,
		To:       to,
		Actor:    audit.ActorCLI,
		By:       "@test",
		Ctx:      audit.EventContext{SessionID: "test-session"},
	}
}

func appendEvents(t *testing.T, itoDir string, events ...audit.Event) {
	t.Helper()
	w := audit.NewFSWriter(itoDir)
	for _, e := range events {
		require.NoError(t, w.Append(e))
	}
}

func taskKey(id, scope string) audit.EntityKey {
	return audit.EntityKey{Entity: audit.EntityTask, EntityID: id, Scope: scope}
}

// writeTasksFile lays down a change's tasks.md under the state dir.
func writeTasksFile(t *testing.T, itoDir, changeID, content string) {
	t.Helper()
	dir := filepath.Join(itoDir, "changes", changeID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.md"), []byte(content), 0644))
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// initGitRepo creates a git repository with one commit on main.
func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-b", "main")
	gitCmd(t, dir, "config", "user.name", "Test User")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644))
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-m", "initial commit")
	return dir
}
