package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SetStatus rewrites the status of one task in the tasks.md at path and
// returns the status it had before. The file is replaced atomically so a
// crash mid-write never leaves a half-written task list.
func SetStatus(path, taskID string, to Status) (Status, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := string(raw)

	f := Parse(content)
	task := f.Find(taskID)
	if task == nil {
		return "", fmt.Errorf("task %q not found in %s", taskID, path)
	}
	from := task.Status

	var updated string
	switch f.Format {
	case FormatEnhanced:
		updated, err = rewriteEnhanced(content, taskID, to)
	default:
		updated, err = rewriteCheckbox(content, taskID, to)
	}
	if err != nil {
		return "", err
	}

	if err := atomicWrite(path, []byte(updated)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return from, nil
}

func rewriteEnhanced(content, taskID string, to Status) (string, error) {
	headerRe := regexp.MustCompile(`(?m)^### Task ` + regexp.QuoteMeta(taskID) + `:.*$`)
	loc := headerRe.FindStringIndex(content)
	if loc == nil {
		return "", fmt.Errorf("task %q header not found", taskID)
	}

	sectionEnd := len(content)
	if next := taskHeaderRe.FindStringIndex(content[loc[1]:]); next != nil {
		sectionEnd = loc[1] + next[0]
	}
	if next := waveHeaderRe.FindStringIndex(content[loc[1]:]); next != nil && loc[1]+next[0] < sectionEnd {
		sectionEnd = loc[1] + next[0]
	}

	section := content[loc[1]:sectionEnd]
	line := fmt.Sprintf("- **Status**: [%c] %s", to.Marker(), to)

	if statusLineRe.MatchString(section) {
		section = statusLineRe.ReplaceAllString(section, line)
	} else {
		section = "\n" + line + section
	}

	return content[:loc[1]] + section + content[sectionEnd:], nil
}

func rewriteCheckbox(content, taskID string, to Status) (string, error) {
	lineRe := regexp.MustCompile(`(?m)^([-*] )\[.\](\s*` + regexp.QuoteMeta(taskID) + `:.*)$`)
	if !lineRe.MatchString(content) {
		return "", fmt.Errorf("task %q line not found", taskID)
	}
	marker := string(to.Marker())
	return lineRe.ReplaceAllString(content, "${1}["+marker+"]${2}"), nil
}

// atomicWrite writes data to a temp file in the target directory, syncs
// it, and renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tasks-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// AddTask appends a task entry to the tasks.md at path in the file's own
// format, creating a checkbox file when path does not exist yet.
func AddTask(path, taskID, name string, wave int) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		line := fmt.Sprintf("# Tasks\n\n- [ ] %s: %s\n", taskID, name)
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return mkErr
		}
		return atomicWrite(path, []byte(line))
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	content := string(raw)
	f := Parse(content)
	if f.Find(taskID) != nil {
		return fmt.Errorf("task %q already exists", taskID)
	}

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	switch f.Format {
	case FormatEnhanced:
		if wave > 0 && !strings.Contains(content, fmt.Sprintf("## Wave %d", wave)) {
			content += fmt.Sprintf("\n## Wave %d\n", wave)
		}
		content += fmt.Sprintf("\n### Task %s: %s\n- **Status**: [ ] pending\n", taskID, name)
	default:
		content += fmt.Sprintf("- [ ] %s: %s\n", taskID, name)
	}

	return atomicWrite(path, []byte(content))
}
