package audit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kastheco/ito/log"
)

// DefaultPollInterval is how often stream consumers re-check the log.
const DefaultPollInterval = 500 * time.Millisecond

const defaultStreamLast = 10

// Cursor marks a position in one log file: the file's identity at read
// time plus the byte offset and line count already consumed. The string
// form survives serialization, so callers can persist it and resume a
// stream across process restarts. Callers treat it as opaque.
type Cursor struct {
	dev    uint64
	ino    uint64
	offset int64
	lines  int
}

// IsZero reports whether the cursor marks no position at all.
func (c Cursor) IsZero() bool { return c == Cursor{} }

func (c Cursor) String() string {
	return fmt.Sprintf("v1:%d:%d:%d:%d", c.dev, c.ino, c.offset, c.lines)
}

// ParseCursor decodes a cursor previously produced by String.
func ParseCursor(s string) (Cursor, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "v1" {
		return Cursor{}, fmt.Errorf("invalid cursor %q", s)
	}
	nums := make([]uint64, 4)
	for i, p := range parts[1:] {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Cursor{}, fmt.Errorf("invalid cursor %q: %v", s, err)
		}
		nums[i] = n
	}
	return Cursor{dev: nums[0], ino: nums[1], offset: int64(nums[2]), lines: int(nums[3])}, nil
}

func statFile(path string) (dev, ino uint64, size int64, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, 0, err
	}
	return uint64(st.Dev), uint64(st.Ino), st.Size, nil
}

// ReadInitial reads the whole log and returns the cursor marking
// end-of-file at read time. A missing file yields an empty result and a
// zero cursor.
func ReadInitial(path string) (ReadResult, Cursor, error) {
	dev, ino, _, err := statFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ReadResult{}, Cursor{}, nil
		}
		return ReadResult{}, Cursor{}, ioErr("stat audit log", err)
	}
	return readForward(path, Cursor{dev: dev, ino: ino})
}

// PollNew returns the events appended after the cursor, plus the advanced
// cursor. An event already returned for a cursor position is never
// returned again by a later call with an equal-or-later cursor. If the
// file shrank below the cursor or its identity changed (rotated or
// replaced), the log is re-read from the start and resynced is true; the
// caller decides how to present the repeated events.
func PollNew(path string, cur Cursor) (events ReadResult, next Cursor, resynced bool, err error) {
	dev, ino, size, err := statFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if cur.IsZero() {
				return ReadResult{}, cur, false, nil
			}
			// The log vanished under us; start over once it returns.
			return ReadResult{}, Cursor{}, true, nil
		}
		return ReadResult{}, cur, false, ioErr("stat audit log", err)
	}

	if cur.IsZero() {
		res, ncur, err := ReadInitial(path)
		return res, ncur, false, err
	}
	if dev != cur.dev || ino != cur.ino || size < cur.offset {
		res, ncur, err := ReadInitial(path)
		return res, ncur, true, err
	}

	res, ncur, err := readForward(path, cur)
	return res, ncur, false, err
}

// readForward reads complete lines from the cursor's offset to end of
// file. A final line without its trailing newline is a write still in
// progress: the cursor stops before it so a later poll picks it up whole.
func readForward(path string, cur Cursor) (ReadResult, Cursor, error) {
	var res ReadResult

	f, err := os.Open(path)
	if err != nil {
		return res, cur, ioErr("open audit log", err)
	}
	defer f.Close()

	if cur.offset > 0 {
		if _, err := f.Seek(cur.offset, io.SeekStart); err != nil {
			return res, cur, ioErr("seek audit log", err)
		}
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return res, cur, ioErr("read audit log", err)
	}

	consumed := 0
	for {
		idx := bytes.IndexByte(raw[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := raw[consumed : consumed+idx]
		consumed += idx + 1
		cur.lines++
		decodeLine(path, cur.lines, string(line), &res)
	}
	cur.offset += int64(consumed)

	return res, cur, nil
}

// StreamConfig controls a streaming session.
type StreamConfig struct {
	// PollInterval is how long consumers wait between polls.
	PollInterval time.Duration
	// AllWorktrees includes every discovered worktree's log, not just
	// the project's own.
	AllWorktrees bool
	// Last bounds how many existing events the initial read emits.
	Last int
	// StartCursor resumes the project log from a persisted position
	// instead of tailing the last events.
	StartCursor Cursor
}

// DefaultStreamConfig returns the stock streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{PollInterval: DefaultPollInterval, Last: defaultStreamLast}
}

// StreamEvent is one event tagged with the source it came from: "main"
// for the project's own log, the branch name (or path) for a worktree.
type StreamEvent struct {
	Event  Event  `json:"event"`
	Source string `json:"source"`
}

type streamSource struct {
	label  string
	path   string
	cursor Cursor
}

// Stream tracks per-source cursors across polls.
type Stream struct {
	sources []*streamSource
	// Excluded lists worktrees dropped at open time for unreadable logs.
	Excluded []ExcludedWorktree
	// Skipped counts unusable lines seen so far across all sources.
	Skipped int
}

// OpenStream prepares a streaming session over the project's audit log
// and, when configured, every worktree's. It returns the stream plus the
// initial batch of events per the config's Last and StartCursor.
func OpenStream(itoDir string, cfg StreamConfig) (*Stream, []StreamEvent, error) {
	s := &Stream{}
	var initial []StreamEvent

	mainSrc := &streamSource{label: "main", path: LogPath(itoDir)}
	if !cfg.StartCursor.IsZero() {
		res, cur, _, err := PollNew(mainSrc.path, cfg.StartCursor)
		if err != nil {
			return nil, nil, err
		}
		mainSrc.cursor = cur
		s.Skipped += res.Skipped()
		for _, e := range res.Events {
			initial = append(initial, StreamEvent{Event: e, Source: mainSrc.label})
		}
	} else {
		res, cur, err := ReadInitial(mainSrc.path)
		if err != nil {
			return nil, nil, err
		}
		mainSrc.cursor = cur
		s.Skipped += res.Skipped()
		for _, e := range tailEvents(res.Events, cfg.Last) {
			initial = append(initial, StreamEvent{Event: e, Source: mainSrc.label})
		}
	}
	s.sources = append(s.sources, mainSrc)

	if cfg.AllWorktrees {
		s.openWorktreeSources(itoDir, cfg, &initial)
	}

	return s, initial, nil
}

func (s *Stream) openWorktreeSources(itoDir string, cfg StreamConfig, initial *[]StreamEvent) {
	wts, err := DiscoverWorktrees(filepath.Dir(itoDir))
	if err != nil {
		log.WarningLog.Printf("worktree discovery failed: %v", err)
		return
	}
	itoDirName := filepath.Base(itoDir)

	for _, wt := range wts {
		if wt.IsMain {
			continue
		}
		label := wt.Branch
		if label == "" {
			label = wt.Path
		}
		path := WorktreeLogPath(wt, itoDirName)
		res, cur, err := ReadInitial(path)
		if err != nil {
			s.Excluded = append(s.Excluded, ExcludedWorktree{Worktree: wt, Reason: err.Error()})
			continue
		}
		s.Skipped += res.Skipped()
		for _, e := range tailEvents(res.Events, cfg.Last) {
			*initial = append(*initial, StreamEvent{Event: e, Source: label})
		}
		s.sources = append(s.sources, &streamSource{label: label, path: path, cursor: cur})
	}
}

// Poll checks every source once and returns the newly appended events.
// A source that cannot be read this round keeps its cursor and is retried
// on the next poll.
func (s *Stream) Poll() []StreamEvent {
	var out []StreamEvent
	for _, src := range s.sources {
		res, cur, resynced, err := PollNew(src.path, src.cursor)
		if err != nil {
			log.WarningLog.Printf("audit stream %s: %v", src.label, err)
			continue
		}
		if resynced {
			log.WarningLog.Printf("audit log %s rotated or truncated; resynchronized", src.path)
		}
		src.cursor = cur
		s.Skipped += res.Skipped()
		for _, e := range res.Events {
			out = append(out, StreamEvent{Event: e, Source: src.label})
		}
	}
	return out
}

// MainCursor returns the current cursor for the project's own log, for
// callers that persist a resume point across runs.
func (s *Stream) MainCursor() Cursor { return s.sources[0].cursor }

func tailEvents(events []Event, last int) []Event {
	if last > 0 && len(events) > last {
		return events[len(events)-last:]
	}
	return events
}
