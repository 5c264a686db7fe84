package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// LogPath returns the canonical audit log path for a project state dir.
func LogPath(itoDir string) string {
	return filepath.Join(itoDir, ".state", "audit", "events.jsonl")
}

// Writer is the capability to append one event to the audit log. The
// durable implementation and the no-op implementation both satisfy it, so
// callers receive whichever is appropriate at construction time and stay
// agnostic afterwards.
type Writer interface {
	Append(event Event) error
}

// NewWriter selects the writer implementation: the durable filesystem
// writer when a state dir is known and auditing is enabled, otherwise the
// no-op writer.
func NewWriter(itoDir string, enabled bool) Writer {
	if !enabled || itoDir == "" {
		return NopWriter{}
	}
	return NewFSWriter(itoDir)
}

// FSWriter appends events to the project's JSONL audit log.
type FSWriter struct {
	logPath string
}

// NewFSWriter creates a writer for the given project state dir.
func NewFSWriter(itoDir string) *FSWriter {
	return &FSWriter{logPath: LogPath(itoDir)}
}

// LogPath returns the file this writer appends to.
func (w *FSWriter) LogPath() string { return w.logPath }

// Append serializes the event as one JSON line and appends it durably: the
// file is opened in append mode, the whole line lands in a single write so
// interleaved appends from other processes stay intact, and the file is
// synced before returning. Existing lines are never rewritten. Any failure
// is reported; the durable writer never drops an event silently.
func (w *FSWriter) Append(event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return ioErr("encode event", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.logPath), 0755); err != nil {
		return ioErr("create audit dir", err)
	}

	f, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return ioErr("open audit log", err)
	}

	if _, err := f.Write(append(raw, '\n')); err != nil {
		_ = f.Close()
		return ioErr("append event", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return ioErr("sync audit log", err)
	}
	if err := f.Close(); err != nil {
		return ioErr("close audit log", err)
	}
	return nil
}

// NopWriter discards all events without error. Used before the state dir
// exists or when auditing is administratively disabled.
type NopWriter struct{}

func (NopWriter) Append(Event) error { return nil }
