package audit

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/kastheco/ito/log"
)

// Filter selects a subset of events. Zero-value fields match everything.
type Filter struct {
	Entity   string
	EntityID string
	Scope    string
	Op       string
	Actor    string
	Since    time.Time
	Until    time.Time
}

// Matches reports whether the event satisfies every set criterion.
func (f Filter) Matches(e Event) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Scope != "" && e.Scope != f.Scope {
		return false
	}
	if f.Op != "" && e.Op != f.Op {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		ts := ParseTS(e.TS)
		if !f.Since.IsZero() && ts.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && ts.After(f.Until) {
			return false
		}
	}
	return true
}

// ReadResult carries the events parsed from one log in physical line order
// plus the counts of lines that could not be used. The two counts are kept
// separate so schema drift is tellable apart from corruption.
type ReadResult struct {
	Events       []Event
	Malformed    int
	WrongVersion int
}

// Skipped returns the total number of unusable lines.
func (r ReadResult) Skipped() int { return r.Malformed + r.WrongVersion }

// ReadLog reads every event from the JSONL file at path. A missing file
// reads as empty. Each line is decoded independently: a malformed line (a
// torn trailing write, say) or a line with an unknown schema version is
// counted and skipped, never aborting the read. Any other filesystem
// failure is surfaced.
func ReadLog(path string) (ReadResult, error) {
	var res ReadResult

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, ioErr("read audit log", err)
	}

	for i, line := range strings.Split(string(raw), "\n") {
		decodeLine(path, i+1, line, &res)
	}

	return res, nil
}

// decodeLine decodes one log line into res. Blank lines are ignored;
// malformed lines and unknown schema versions are counted, warned about,
// and skipped.
func decodeLine(path string, lineNo int, line string, res *ReadResult) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var e Event
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		res.Malformed++
		log.WarningLog.Printf("audit log %s line %d: malformed event: %v", path, lineNo, err)
		return
	}
	if e.Version != SchemaVersion {
		res.WrongVersion++
		log.WarningLog.Printf("audit log %s line %d: unknown schema version %d", path, lineNo, e.Version)
		return
	}
	res.Events = append(res.Events, e)
}

// ReadLogFiltered reads the log and keeps only events matching the filter.
// Skip counts still reflect the whole file.
func ReadLogFiltered(path string, f Filter) (ReadResult, error) {
	res, err := ReadLog(path)
	if err != nil {
		return res, err
	}
	if f == (Filter{}) {
		return res, nil
	}
	kept := res.Events[:0:0]
	for _, e := range res.Events {
		if f.Matches(e) {
			kept = append(kept, e)
		}
	}
	res.Events = kept
	return res, nil
}
