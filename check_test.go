package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kastheco/ito/cmd"
	"github.com/kastheco/ito/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureCheckOutput runs newCheckCmd() with a temp home/project layout and
// captures stdout. Returns the output and the command's error.
func captureCheckOutput(t *testing.T, setupFn func(home, project string)) (string, error) {
	t.Helper()

	home := t.TempDir()
	project := t.TempDir()

	if setupFn != nil {
		setupFn(home, project)
	}

	t.Setenv("HOME", home)

	origWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(project))
	defer os.Chdir(origWd)

	checkCmd := newCheckCmd()
	var buf bytes.Buffer
	checkCmd.SetOut(&buf)
	checkCmd.SetErr(&buf)

	execErr := checkCmd.Execute()
	return buf.String(), execErr
}

func TestCheckCmd_NoStateDir(t *testing.T) {
	out, err := captureCheckOutput(t, nil)

	assert.Contains(t, out, "Project health:")
	assert.Contains(t, out, "✓ config")
	assert.Contains(t, out, "✗ state dir")
	assert.Contains(t, out, "Health: 1/2 OK (50%)")
	require.ErrorIs(t, err, cmd.ErrUnhealthy)
}

func TestCheckCmd_HealthyProject(t *testing.T) {
	out, err := captureCheckOutput(t, func(home, project string) {
		itoDir := filepath.Join(project, ".ito")
		require.NoError(t, os.MkdirAll(filepath.Join(itoDir, "changes"), 0755))
		require.NoError(t, os.MkdirAll(filepath.Join(itoDir, ".state", "audit"), 0755))
		require.NoError(t, os.WriteFile(audit.SessionPath(itoDir), []byte("session-abc"), 0644))

		w := audit.NewFSWriter(itoDir)
		require.NoError(t, w.Append(audit.Event{
			Version: 1, TS: "2026-08-20T10:00:00.000Z",
			Entity: "task", EntityID: "1.1", Scope: "alpha",
			Op: "create", To: "pending", Actor: "cli", By: "@dev",
			Ctx: audit.EventContext{SessionID: "session-abc"},
		}))
		require.NoError(t, w.Append(audit.Event{
			Version: 1, TS: "2026-08-20T10:00:01.000Z",
			Entity: "task", EntityID: "1.1", Scope: "alpha",
			Op: "status_change", From: "pending", To: "in-progress", Actor: "cli", By: "@dev",
			Ctx: audit.EventContext{SessionID: "session-abc"},
		}))
	})

	require.NoError(t, err)
	assert.Contains(t, out, "✓ state dir")
	assert.Contains(t, out, "✓ changes")
	assert.Contains(t, out, "2 events")
	assert.Contains(t, out, "✓ log consistency")
	assert.Contains(t, out, "✓ session")
	assert.Contains(t, out, "session-abc")
	assert.Contains(t, out, "Health: 6/6 OK (100%)")
}

func TestCheckCmd_CorruptLogLine(t *testing.T) {
	out, err := captureCheckOutput(t, func(home, project string) {
		itoDir := filepath.Join(project, ".ito")
		auditDir := filepath.Join(itoDir, ".state", "audit")
		require.NoError(t, os.MkdirAll(filepath.Join(itoDir, "changes"), 0755))
		require.NoError(t, os.MkdirAll(auditDir, 0755))

		lines := `{"v":1,"ts":"2026-08-20T10:00:00.000Z","entity":"task","entity_id":"1.1","scope":"alpha","op":"create","to":"pending","actor":"cli","by":"@dev","ctx":{"session_id":"s-1"}}
{this line is torn`
		require.NoError(t, os.WriteFile(filepath.Join(auditDir, "events.jsonl"), []byte(lines), 0644))
	})

	assert.Contains(t, out, "✗ audit log")
	assert.Contains(t, out, "1 unreadable lines")
	require.ErrorIs(t, err, cmd.ErrUnhealthy)
}

func TestCheckCmd_MissingSessionIsSkip(t *testing.T) {
	out, err := captureCheckOutput(t, func(home, project string) {
		itoDir := filepath.Join(project, ".ito")
		require.NoError(t, os.MkdirAll(filepath.Join(itoDir, "changes"), 0755))
		require.NoError(t, os.MkdirAll(filepath.Join(itoDir, ".state", "audit"), 0755))
	})

	require.NoError(t, err)
	assert.Contains(t, out, "⊘ session")
	assert.Contains(t, out, "no session yet")
	assert.Contains(t, out, "(100%)")
}
