package audit_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/changes"
	"github.com/kastheco/ito/internal/tasks"
)

const reconcileTasksFixture = `# Tasks

## Wave 1

### Task 1.1: Wire the writer
- **Status**: [x] complete

### Task 1.2: Wire the reader
- **Status**: [ ] pending
`

func TestComputeDrift(t *testing.T) {
	t.Run("no drift when states match", func(t *testing.T) {
		logState := audit.Materialize([]audit.Event{
			taskEvent("1.1", audit.OpCreate, "", "complete"),
			taskEvent("1.2", audit.OpCreate, "", "pending"),
		})
		fileState := audit.FileState{
			taskKey("1.1", "test-change"): "complete",
			taskKey("1.2", "test-change"): "pending",
		}

		assert.Empty(t, audit.ComputeDrift(logState, fileState))
	})

	t.Run("mismatch carries both values", func(t *testing.T) {
		logState := audit.Materialize([]audit.Event{
			taskEvent("1.1", audit.OpCreate, "", "pending"),
		})
		fileState := audit.FileState{taskKey("1.1", "test-change"): "complete"}

		drifts := audit.ComputeDrift(logState, fileState)
		require.Len(t, drifts, 1)
		assert.Equal(t, audit.DriftMismatch, drifts[0].Kind)
		assert.Equal(t, "pending", drifts[0].LogStatus)
		assert.Equal(t, "complete", drifts[0].FileStatus)
	})

	t.Run("unlogged file entry", func(t *testing.T) {
		fileState := audit.FileState{taskKey("1.1", "test-change"): "complete"}

		drifts := audit.ComputeDrift(audit.Materialize(nil), fileState)
		require.Len(t, drifts, 1)
		assert.Equal(t, audit.DriftUnlogged, drifts[0].Kind)
		assert.Equal(t, "complete", drifts[0].FileStatus)
		assert.Empty(t, drifts[0].LogStatus)
	})

	t.Run("orphaned log entry", func(t *testing.T) {
		logState := audit.Materialize([]audit.Event{
			taskEvent("1.1", audit.OpCreate, "", "in-progress"),
		})

		drifts := audit.ComputeDrift(logState, audit.FileState{})
		require.Len(t, drifts, 1)
		assert.Equal(t, audit.DriftOrphaned, drifts[0].Kind)
		assert.Equal(t, "in-progress", drifts[0].LogStatus)
		assert.Empty(t, drifts[0].FileStatus)
	})

	t.Run("only tasks can be orphaned", func(t *testing.T) {
		logState := audit.Materialize([]audit.Event{
			audit.NewEvent(audit.EntityConfig, "default_harness", audit.OpSet, audit.WithTo("claude")),
		})

		assert.Empty(t, audit.ComputeDrift(logState, audit.FileState{}))
	})

	t.Run("archived entity is still orphanable", func(t *testing.T) {
		logState := audit.Materialize([]audit.Event{
			taskEvent("1.1", audit.OpCreate, "", "pending"),
			audit.NewEvent(audit.EntityTask, "1.1", audit.OpArchive, audit.WithScope("test-change")),
		})

		drifts := audit.ComputeDrift(logState, audit.FileState{})
		require.Len(t, drifts, 1)
		assert.Equal(t, audit.ArchivedState, drifts[0].LogStatus)
	})

	t.Run("sorted by entity then id then scope", func(t *testing.T) {
		fileState := audit.FileState{
			taskKey("2.1", "ch"):  "pending",
			taskKey("1.2", "ch"):  "pending",
			taskKey("1.10", "ch"): "pending",
			{Entity: audit.EntityChange, EntityID: "ch"}: "active",
		}

		drifts := audit.ComputeDrift(audit.Materialize(nil), fileState)
		require.Len(t, drifts, 4)
		assert.Equal(t, audit.EntityChange, drifts[0].Key.Entity)
		assert.Equal(t, "1.10", drifts[1].Key.EntityID)
		assert.Equal(t, "1.2", drifts[2].Key.EntityID)
		assert.Equal(t, "2.1", drifts[3].Key.EntityID)
	})
}

func TestDriftString(t *testing.T) {
	tests := []struct {
		name  string
		drift audit.Drift
		want  string
	}{
		{
			"mismatch",
			audit.Drift{Kind: audit.DriftMismatch, Key: taskKey("1.1", "ch"), LogStatus: "pending", FileStatus: "complete"},
			`mismatch: task/1.1 (scope ch): audit="pending" file="complete"`,
		},
		{
			"unlogged",
			audit.Drift{Kind: audit.DriftUnlogged, Key: taskKey("1.1", "ch"), FileStatus: "pending"},
			`unlogged: task/1.1 (scope ch): file status "pending" has no audit events`,
		},
		{
			"orphaned without scope",
			audit.Drift{Kind: audit.DriftOrphaned, Key: audit.EntityKey{Entity: audit.EntityTask, EntityID: "1.1"}, LogStatus: "pending"},
			`orphaned: task/1.1: audit status "pending" has no file entry`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.drift.String())
		})
	}
}

func TestCompensatingEvents(t *testing.T) {
	ctx := audit.EventContext{SessionID: "test-session"}

	t.Run("unlogged gets to only", func(t *testing.T) {
		events := audit.CompensatingEvents([]audit.Drift{
			{Kind: audit.DriftUnlogged, Key: taskKey("1.1", "ch"), FileStatus: "complete"},
		}, "ch", ctx)

		require.Len(t, events, 1)
		e := events[0]
		assert.Equal(t, audit.OpReconciled, e.Op)
		assert.Equal(t, audit.ActorReconcile, e.Actor)
		assert.Equal(t, "@reconcile", e.By)
		assert.Equal(t, "ch", e.Scope)
		assert.Empty(t, e.From)
		assert.Equal(t, "complete", e.To)
		assert.Equal(t, ctx, e.Ctx)

		var meta map[string]string
		require.NoError(t, json.Unmarshal(e.Meta, &meta))
		assert.Contains(t, meta["reason"], "unlogged")
	})

	t.Run("mismatch gets from and to", func(t *testing.T) {
		events := audit.CompensatingEvents([]audit.Drift{
			{Kind: audit.DriftMismatch, Key: taskKey("1.1", "ch"), LogStatus: "pending", FileStatus: "complete"},
		}, "ch", ctx)

		require.Len(t, events, 1)
		assert.Equal(t, "pending", events[0].From)
		assert.Equal(t, "complete", events[0].To)
	})

	t.Run("orphaned gets from only", func(t *testing.T) {
		events := audit.CompensatingEvents([]audit.Drift{
			{Kind: audit.DriftOrphaned, Key: taskKey("1.1", "ch"), LogStatus: "in-progress"},
		}, "ch", ctx)

		require.Len(t, events, 1)
		assert.Equal(t, "in-progress", events[0].From)
		assert.Empty(t, events[0].To)
	})

	t.Run("key scope used when no explicit scope", func(t *testing.T) {
		events := audit.CompensatingEvents([]audit.Drift{
			{Kind: audit.DriftUnlogged, Key: taskKey("1.1", "my-change"), FileStatus: "pending"},
		}, "", ctx)

		require.Len(t, events, 1)
		assert.Equal(t, "my-change", events[0].Scope)
	})
}

func TestBuildFileState(t *testing.T) {
	t.Run("reads task statuses", func(t *testing.T) {
		itoDir := filepath.Join(t.TempDir(), ".ito")
		writeTasksFile(t, itoDir, "test-change", reconcileTasksFixture)

		state, err := audit.BuildFileState(itoDir, "test-change")
		require.NoError(t, err)
		assert.Equal(t, audit.FileState{
			taskKey("1.1", "test-change"): "complete",
			taskKey("1.2", "test-change"): "pending",
		}, state)
	})

	t.Run("missing tasks file is empty state", func(t *testing.T) {
		state, err := audit.BuildFileState(filepath.Join(t.TempDir(), ".ito"), "no-such-change")
		require.NoError(t, err)
		assert.Empty(t, state)
	})

	t.Run("unreadable tasks file is surfaced", func(t *testing.T) {
		itoDir := filepath.Join(t.TempDir(), ".ito")
		// A directory where the file should be makes the read fail outright.
		require.NoError(t, os.MkdirAll(filepath.Join(itoDir, "changes", "bad-change", "tasks.md"), 0755))

		_, err := audit.BuildFileState(itoDir, "bad-change")
		require.Error(t, err)
		assert.ErrorIs(t, err, audit.ErrReconcileInput)
	})
}

func TestRunReconcileScoped(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	writeTasksFile(t, itoDir, "test-change", reconcileTasksFixture)
	appendEvents(t, itoDir,
		taskEvent("1.1", audit.OpCreate, "", "pending"),
		taskEvent("1.1", audit.OpStatusChange, "pending", "complete"),
		taskEvent("1.2", audit.OpCreate, "", "pending"),
	)

	report, err := audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, "test-change", report.ScopedTo)
	assert.Zero(t, report.EventsWritten)
}

func TestRunReconcileDetectsAndFixesMismatch(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	writeTasksFile(t, itoDir, "test-change", reconcileTasksFixture)
	// The log still thinks 1.1 is pending.
	appendEvents(t, itoDir,
		taskEvent("1.1", audit.OpCreate, "", "pending"),
		taskEvent("1.2", audit.OpCreate, "", "pending"),
	)

	report, err := audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, audit.DriftMismatch, report.Drifts[0].Kind)
	assert.Zero(t, report.EventsWritten, "detection alone must not write")

	w := audit.NewFSWriter(itoDir)
	report, err = audit.RunReconcile(itoDir, "test-change", true, w)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EventsWritten)

	// The compensating event settles the drift for the next pass.
	report, err = audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	res, err := audit.ReadLog(audit.LogPath(itoDir))
	require.NoError(t, err)
	last := res.Events[len(res.Events)-1]
	assert.Equal(t, audit.OpReconciled, last.Op)
	assert.Equal(t, audit.ActorReconcile, last.Actor)
	assert.Equal(t, "complete", last.To)
}

func TestRunReconcileFixesUnlogged(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	writeTasksFile(t, itoDir, "test-change", reconcileTasksFixture)

	w := audit.NewFSWriter(itoDir)
	report, err := audit.RunReconcile(itoDir, "test-change", true, w)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 2)
	assert.Equal(t, audit.DriftUnlogged, report.Drifts[0].Kind)
	assert.Equal(t, 2, report.EventsWritten)

	report, err = audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestRunReconcileProjectWide(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	writeTasksFile(t, itoDir, "ch-a", "# Tasks\n\n### Task 1.1: Done work\n- **Status**: [x] complete\n")
	writeTasksFile(t, itoDir, "ch-b", "# Tasks\n\n### Task 1.1: New work\n- **Status**: [ ] pending\n")
	appendEvents(t, itoDir,
		rawEvent(audit.EntityTask, "1.1", "ch-a", audit.OpCreate, "", "complete", "2026-02-08T14:30:00.000Z"),
	)

	report, err := audit.RunReconcile(itoDir, "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "project", report.ScopedTo)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, audit.DriftUnlogged, report.Drifts[0].Kind)
	assert.Equal(t, taskKey("1.1", "ch-b"), report.Drifts[0].Key)
}

func TestTaskLifecycleStaysReconciled(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	writeTasksFile(t, itoDir, "test-change", reconcileTasksFixture)
	appendEvents(t, itoDir,
		taskEvent("1.1", audit.OpCreate, "", "pending"),
		taskEvent("1.1", audit.OpStatusChange, "pending", "complete"),
		taskEvent("1.2", audit.OpCreate, "", "pending"),
	)

	report, err := audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	require.True(t, report.Clean())

	// A status change recorded in both the file and the log keeps them
	// in agreement.
	tasksPath := changes.TasksPath(itoDir, "test-change")
	prior, err := tasks.SetStatus(tasksPath, "1.2", tasks.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusPending, prior)
	appendEvents(t, itoDir, taskEvent("1.2", audit.OpStatusChange, "pending", "in-progress"))

	report, err = audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	// A file-only edit drifts until reconciled.
	_, err = tasks.SetStatus(tasksPath, "1.2", tasks.StatusComplete)
	require.NoError(t, err)

	report, err = audit.RunReconcile(itoDir, "test-change", false, nil)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, audit.DriftMismatch, report.Drifts[0].Kind)
	assert.Equal(t, "in-progress", report.Drifts[0].LogStatus)
	assert.Equal(t, "complete", report.Drifts[0].FileStatus)
}

func TestRunReconcileSkipsArchivedChanges(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	dir := filepath.Join(itoDir, "changes", "archive", "old-change")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.md"),
		[]byte("### Task 1.1: Old work\n- **Status**: [ ] pending\n"), 0644))

	report, err := audit.RunReconcile(itoDir, "", false, nil)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}
