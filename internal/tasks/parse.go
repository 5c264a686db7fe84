package tasks

import (
	"regexp"
	"strconv"
	"strings"
)

// Format identifies which tasks.md layout a file uses.
type Format int

const (
	// FormatEnhanced uses ### Task headers with explicit status lines,
	// grouped under ## Wave sections.
	FormatEnhanced Format = iota
	// FormatCheckbox uses one checkbox list item per task.
	FormatCheckbox
)

// Task is one entry extracted from tasks.md.
type Task struct {
	ID     string
	Name   string
	Status Status
	Wave   int
}

// File is a parsed tasks.md.
type File struct {
	Format Format
	Tasks  []Task
}

// Progress returns completed and total task counts. Shelved tasks count
// as completed.
func (f *File) Progress() (done, total int) {
	for _, t := range f.Tasks {
		if t.Status.Done() {
			done++
		}
	}
	return done, len(f.Tasks)
}

// Find returns the task with the given id, or nil.
func (f *File) Find(id string) *Task {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			return &f.Tasks[i]
		}
	}
	return nil
}

var (
	waveHeaderRe = regexp.MustCompile(`(?m)^## Wave (\d+)\s*$`)
	taskHeaderRe = regexp.MustCompile(`(?m)^### Task ([0-9][0-9.]*):\s*(.+)$`)
	statusLineRe = regexp.MustCompile(`(?m)^- \*\*Status\*\*:\s*\[(.)\]\s*(\S+)`)
	checkboxRe   = regexp.MustCompile(`(?m)^[-*] \[(.)\]\s*(?:([0-9][0-9.]*):\s*)?(.+)$`)
)

// Parse extracts tasks from tasks.md content. The format is detected from
// the content: ### Task headers select the enhanced format, otherwise
// checkbox list items are used. Parsing is tolerant — unknown status
// labels fall back to what the checkbox marker says, and content that
// matches neither format yields an empty file.
func Parse(content string) *File {
	if taskHeaderRe.MatchString(content) {
		return parseEnhanced(content)
	}
	return parseCheckbox(content)
}

func parseEnhanced(content string) *File {
	f := &File{Format: FormatEnhanced}

	waveMatches := waveHeaderRe.FindAllStringSubmatchIndex(content, -1)
	taskMatches := taskHeaderRe.FindAllStringSubmatchIndex(content, -1)

	waveFor := func(pos int) int {
		wave := 0
		for _, wm := range waveMatches {
			if wm[0] > pos {
				break
			}
			wave, _ = strconv.Atoi(content[wm[2]:wm[3]])
		}
		return wave
	}

	for i, tm := range taskMatches {
		id := content[tm[2]:tm[3]]
		name := strings.TrimSpace(content[tm[4]:tm[5]])

		// Task section: from end of header line to the next task header,
		// wave header, or end of content.
		sectionStart := tm[1]
		sectionEnd := len(content)
		if i+1 < len(taskMatches) {
			sectionEnd = taskMatches[i+1][0]
		}
		for _, wm := range waveMatches {
			if wm[0] > sectionStart && wm[0] < sectionEnd {
				sectionEnd = wm[0]
				break
			}
		}
		section := content[sectionStart:sectionEnd]

		status := StatusPending
		if sm := statusLineRe.FindStringSubmatch(section); sm != nil {
			if s, ok := ParseStatus(sm[2]); ok {
				status = s
			} else if s, ok := statusForMarker(sm[1][0]); ok {
				status = s
			}
		}

		f.Tasks = append(f.Tasks, Task{
			ID:     id,
			Name:   name,
			Status: status,
			Wave:   waveFor(tm[0]),
		})
	}

	return f
}

func parseCheckbox(content string) *File {
	f := &File{Format: FormatCheckbox}

	for _, m := range checkboxRe.FindAllStringSubmatch(content, -1) {
		status, ok := statusForMarker(m[1][0])
		if !ok {
			continue
		}
		id := m[2]
		if id == "" {
			// Unlabeled items get ordinal ids so they stay addressable.
			id = strconv.Itoa(len(f.Tasks) + 1)
		}
		f.Tasks = append(f.Tasks, Task{
			ID:     id,
			Name:   strings.TrimSpace(m[3]),
			Status: status,
		})
	}

	return f
}
