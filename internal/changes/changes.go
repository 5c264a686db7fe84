// Package changes manages the per-change directories under the project
// state dir: listing, creation, task progress assembly, and archival.
package changes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kastheco/ito/internal/tasks"
)

// archiveDirName is reserved inside the changes dir and never listed as a
// change itself.
const archiveDirName = "archive"

// Change is one change directory under the project's changes dir.
type Change struct {
	ID       string
	Path     string
	Archived bool
}

// Dir returns the changes directory for a project state dir.
func Dir(itoDir string) string {
	return filepath.Join(itoDir, "changes")
}

// ArchivePath returns the archive directory for a project state dir.
func ArchivePath(itoDir string) string {
	return filepath.Join(itoDir, "changes", archiveDirName)
}

// TasksPath returns the tasks.md path for one change.
func TasksPath(itoDir, changeID string) string {
	return filepath.Join(Dir(itoDir), changeID, "tasks.md")
}

// List returns active changes sorted by id. A missing changes dir lists as
// empty.
func List(itoDir string) ([]Change, error) {
	entries, err := os.ReadDir(Dir(itoDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read changes dir: %w", err)
	}

	var out []Change
	for _, e := range entries {
		if !e.IsDir() || e.Name() == archiveDirName {
			continue
		}
		out = append(out, Change{ID: e.Name(), Path: filepath.Join(Dir(itoDir), e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListArchived returns archived changes sorted by id.
func ListArchived(itoDir string) ([]Change, error) {
	entries, err := os.ReadDir(ArchivePath(itoDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var out []Change
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, Change{
			ID:       e.Name(),
			Path:     filepath.Join(ArchivePath(itoDir), e.Name()),
			Archived: true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create scaffolds a new change directory with an empty task list.
func Create(itoDir, changeID string) error {
	if changeID == "" || changeID == archiveDirName {
		return fmt.Errorf("invalid change id %q", changeID)
	}
	dir := filepath.Join(Dir(itoDir), changeID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("change %q already exists", changeID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create change dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "tasks.md"), []byte("# Tasks\n"), 0644)
}

// Archive moves a change directory into the archive.
func Archive(itoDir, changeID string) error {
	src := filepath.Join(Dir(itoDir), changeID)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("change %q: %w", changeID, err)
	}
	dst := filepath.Join(ArchivePath(itoDir), changeID)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("change %q is already archived", changeID)
	}
	if err := os.MkdirAll(ArchivePath(itoDir), 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	return os.Rename(src, dst)
}

// Progress returns task completion for one change. A missing tasks.md
// counts as zero tasks.
func Progress(itoDir, changeID string) (done, total int, err error) {
	raw, err := os.ReadFile(TasksPath(itoDir, changeID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read tasks file: %w", err)
	}
	done, total = tasks.Parse(string(raw)).Progress()
	return done, total, nil
}
