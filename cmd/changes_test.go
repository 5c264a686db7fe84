package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/changes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changesProject(t *testing.T) (root, itoDir string) {
	t.Helper()
	root = t.TempDir()
	itoDir = filepath.Join(root, ".ito")
	require.NoError(t, os.MkdirAll(itoDir, 0o755))
	return root, itoDir
}

func TestExecuteChangesCreate(t *testing.T) {
	root, itoDir := changesProject(t)

	var buf bytes.Buffer
	require.NoError(t, executeChangesCreate(&buf, root, itoDir, "alpha"))
	assert.Equal(t, "created change: alpha\n", buf.String())

	raw, err := os.ReadFile(changes.TasksPath(itoDir, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, "# Tasks\n", string(raw))

	e := lastEvent(t, itoDir)
	assert.Equal(t, audit.EntityChange, e.Entity)
	assert.Equal(t, "alpha", e.EntityID)
	assert.Equal(t, audit.OpCreate, e.Op)
	assert.Empty(t, e.Scope)
	assert.Empty(t, e.To)
}

func TestExecuteChangesCreate_Duplicate(t *testing.T) {
	root, itoDir := changesProject(t)

	var buf bytes.Buffer
	require.NoError(t, executeChangesCreate(&buf, root, itoDir, "alpha"))
	err := executeChangesCreate(&buf, root, itoDir, "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestExecuteChangesArchive(t *testing.T) {
	root, itoDir := changesProject(t)
	require.NoError(t, changes.Create(itoDir, "alpha"))

	var buf bytes.Buffer
	require.NoError(t, executeChangesArchive(&buf, root, itoDir, "alpha"))
	assert.Equal(t, "archived change: alpha\n", buf.String())

	_, err := os.Stat(filepath.Join(changes.Dir(itoDir), "alpha"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(changes.ArchivePath(itoDir), "alpha"))
	assert.NoError(t, err)

	e := lastEvent(t, itoDir)
	assert.Equal(t, audit.OpArchive, e.Op)
	assert.Equal(t, "alpha", e.EntityID)
}

func TestExecuteChangesArchive_Missing(t *testing.T) {
	root, itoDir := changesProject(t)

	var buf bytes.Buffer
	err := executeChangesArchive(&buf, root, itoDir, "ghost")
	require.Error(t, err)
}

func TestExecuteChangesList_Empty(t *testing.T) {
	_, itoDir := changesProject(t)

	var buf bytes.Buffer
	require.NoError(t, executeChangesList(&buf, itoDir, false, false))
	assert.Equal(t, "No changes found.\n", buf.String())
}

func TestExecuteChangesList_ShowsProgress(t *testing.T) {
	_, itoDir := changesProject(t)
	writeTasksFile(t, itoDir, "alpha", checkboxFixture)
	require.NoError(t, changes.Create(itoDir, "beta"))

	var buf bytes.Buffer
	require.NoError(t, executeChangesList(&buf, itoDir, false, false))

	out := buf.String()
	assert.Contains(t, out, fmt.Sprintf("%-28s %s", "alpha", "1/3 tasks"))
	assert.Contains(t, out, fmt.Sprintf("%-28s %s", "beta", "0/0 tasks"))
}

func TestExecuteChangesList_Archived(t *testing.T) {
	root, itoDir := changesProject(t)
	require.NoError(t, changes.Create(itoDir, "alpha"))

	var buf bytes.Buffer
	require.NoError(t, executeChangesArchive(&buf, root, itoDir, "alpha"))

	buf.Reset()
	require.NoError(t, executeChangesList(&buf, itoDir, false, false))
	assert.Equal(t, "No changes found.\n", buf.String())

	buf.Reset()
	require.NoError(t, executeChangesList(&buf, itoDir, true, false))
	assert.Contains(t, buf.String(), "(archived)")
	assert.Contains(t, buf.String(), "alpha")
}

func TestExecuteChangesList_JSON(t *testing.T) {
	_, itoDir := changesProject(t)
	writeTasksFile(t, itoDir, "alpha", checkboxFixture)

	var buf bytes.Buffer
	require.NoError(t, executeChangesList(&buf, itoDir, false, true))

	var got []changeJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, changeJSON{ID: "alpha", Archived: false, TasksDone: 1, TasksTotal: 3}, got[0])
}
