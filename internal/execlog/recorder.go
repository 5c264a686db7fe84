// Package execlog records command-run telemetry as JSONL files under the
// user config directory and aggregates them for `ito stats`. Records are
// grouped per project and per month:
//
//	<config>/logs/execution/v1/projects/<slug>/<YYYY-MM>.jsonl
//
// Recording is best-effort: a failure to write telemetry must never fail
// the command that triggered it.
package execlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kastheco/ito/log"
)

// Event types carried in the event_type field of a Record.
const (
	EventCommandStart = "command_start"
	EventCommandEnd   = "command_end"
)

// Exit classes carried in the exit_class field of a command_end Record.
const (
	ExitOK    = "ok"
	ExitError = "error"
)

// Record is one line of an execution log file.
type Record struct {
	EventType  string   `json:"event_type"`
	CommandID  string   `json:"command_id"`
	TS         string   `json:"ts"`
	Args       []string `json:"args,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	ExitClass  string   `json:"exit_class,omitempty"`
	Version    string   `json:"version,omitempty"`
}

// Recorder appends execution records for one project. A nil Recorder is
// valid and discards everything, which is how telemetry is switched off.
type Recorder struct {
	dir     string
	version string
}

// NewRecorder returns a Recorder writing under configDir for the project
// rooted at projectPath. The project directory name is derived from the
// path so that two checkouts with the same basename stay separate.
func NewRecorder(configDir, projectPath, version string) *Recorder {
	return &Recorder{
		dir:     filepath.Join(LogRoot(configDir), ProjectSlug(projectPath)),
		version: version,
	}
}

// LogRoot returns the directory that holds all per-project execution logs.
func LogRoot(configDir string) string {
	return filepath.Join(configDir, "logs", "execution", "v1", "projects")
}

// ProjectSlug converts an absolute project path into a stable directory
// name: the lowercased basename plus a short hash of the full path.
func ProjectSlug(projectPath string) string {
	clean := filepath.Clean(projectPath)
	base := strings.ToLower(filepath.Base(clean))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	sum := sha256.Sum256([]byte(clean))
	return b.String() + "-" + hex.EncodeToString(sum[:])[:8]
}

// CommandID converts a space-separated command path ("ito audit log")
// into the dotted id recorded in telemetry ("ito.audit.log").
func CommandID(commandPath string) string {
	return strings.ReplaceAll(strings.TrimSpace(commandPath), " ", ".")
}

// CommandStart records the beginning of a command run.
func (r *Recorder) CommandStart(commandID string, args []string) {
	if r == nil {
		return
	}
	r.append(Record{
		EventType: EventCommandStart,
		CommandID: commandID,
		Args:      args,
		Version:   r.version,
	})
}

// CommandEnd records a finished command run with its wall-clock duration
// and exit class.
func (r *Recorder) CommandEnd(commandID string, args []string, took time.Duration, exitClass string) {
	if r == nil {
		return
	}
	r.append(Record{
		EventType:  EventCommandEnd,
		CommandID:  commandID,
		Args:       args,
		DurationMS: took.Milliseconds(),
		ExitClass:  exitClass,
		Version:    r.version,
	})
}

func (r *Recorder) append(rec Record) {
	now := time.Now().UTC()
	if rec.TS == "" {
		rec.TS = now.Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		log.WarningLog.Printf("execution log: marshal record: %v", err)
		return
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		log.WarningLog.Printf("execution log: create %s: %v", r.dir, err)
		return
	}

	path := filepath.Join(r.dir, now.Format("2006-01")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.WarningLog.Printf("execution log: open %s: %v", path, err)
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", data); err != nil {
		log.WarningLog.Printf("execution log: write %s: %v", path, err)
	}
}
