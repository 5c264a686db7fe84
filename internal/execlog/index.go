package execlog

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS command_runs (
	id          INTEGER PRIMARY KEY,
	command_id  TEXT    NOT NULL,
	timestamp   TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	exit_class  TEXT    NOT NULL DEFAULT '',
	version     TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_command_ts ON command_runs(command_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_runs_ts ON command_runs(timestamp DESC);

CREATE TABLE IF NOT EXISTS ingest_marks (
	path   TEXT PRIMARY KEY,
	offset INTEGER NOT NULL DEFAULT 0
);
`

const maxQueryLimit = 500

// Run is one indexed command_end record.
type Run struct {
	ID         int64
	CommandID  string
	Timestamp  time.Time
	DurationMS int64
	ExitClass  string
	Version    string
}

// RunFilter specifies criteria for querying indexed runs.
type RunFilter struct {
	CommandID string
	ExitClass string
	Limit     int
	Before    time.Time
	After     time.Time
}

// CommandTotal aggregates all runs of one command.
type CommandTotal struct {
	CommandID       string
	Runs            int64
	TotalDurationMS int64
}

// DayTotal counts the runs that finished on one UTC day.
type DayTotal struct {
	Day  string
	Runs int64
}

// Index is a SQLite rollup of execution log files. Each source file is
// tracked with a byte offset so repeated ingests only read new lines.
type Index struct {
	db *sql.DB
}

// IndexPath returns the on-disk location of the rollup database, a
// sibling of the log root so it is never picked up as a log file.
func IndexPath(configDir string) string {
	return filepath.Join(configDir, "logs", "execution", "v1", "index.db")
}

// NewIndex opens (or creates) a SQLite database at dbPath, runs the
// command_runs schema, and returns a ready-to-use index.
// Use ":memory:" for an in-memory database (useful in tests).
func NewIndex(dbPath string) (*Index, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create execution index dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db for execution index: %w", err)
	}

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run execution index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Ingest scans every .jsonl file under logRoot and indexes the command_end
// records added since the last ingest. Files that shrank since their mark
// are re-read from the start. A trailing line without a newline is left
// for the next ingest. Returns the number of runs added.
func (x *Index) Ingest(logRoot string) (int, error) {
	added := 0
	for _, path := range CollectJSONLFiles(logRoot) {
		n, err := x.ingestFile(path)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

func (x *Index) ingestFile(path string) (int, error) {
	var mark int64
	err := x.db.QueryRow(`SELECT offset FROM ingest_marks WHERE path = ?`, path).Scan(&mark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read ingest mark for %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat execution log %s: %w", path, err)
	}
	if info.Size() < mark {
		mark = 0
	}
	if info.Size() == mark {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open execution log %s: %w", path, err)
	}
	defer f.Close()

	if mark > 0 {
		if _, err := f.Seek(mark, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seek execution log %s: %w", path, err)
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("read execution log %s: %w", path, err)
	}

	added := 0
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		line := strings.TrimSpace(string(data[:nl]))
		data = data[nl+1:]
		mark += int64(nl + 1)
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.EventType != EventCommandEnd || rec.CommandID == "" {
			continue
		}

		const q = `
			INSERT INTO command_runs (command_id, timestamp, duration_ms, exit_class, version)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := x.db.Exec(q, rec.CommandID, rec.TS, rec.DurationMS, rec.ExitClass, rec.Version); err != nil {
			return added, fmt.Errorf("index execution record: %w", err)
		}
		added++
	}

	const upsert = `
		INSERT INTO ingest_marks (path, offset) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET offset = excluded.offset
	`
	if _, err := x.db.Exec(upsert, path, mark); err != nil {
		return added, fmt.Errorf("save ingest mark for %s: %w", path, err)
	}
	return added, nil
}

// Runs returns indexed runs matching the filter, ordered newest-first.
// Limit is capped at 500.
func (x *Index) Runs(f RunFilter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var conditions []string
	var args []any

	if f.CommandID != "" {
		conditions = append(conditions, "command_id = ?")
		args = append(args, f.CommandID)
	}
	if f.ExitClass != "" {
		conditions = append(conditions, "exit_class = ?")
		args = append(args, f.ExitClass)
	}
	if !f.After.IsZero() {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, runFormatTime(f.After))
	}
	if !f.Before.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, runFormatTime(f.Before))
	}

	q := `
		SELECT id, command_id, timestamp, duration_ms, exit_class, version
		FROM command_runs
	`
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)

	rows, err := x.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query command runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts string
		if err := rows.Scan(&r.ID, &r.CommandID, &ts, &r.DurationMS, &r.ExitClass, &r.Version); err != nil {
			return nil, fmt.Errorf("scan command run: %w", err)
		}
		r.Timestamp = runParseTime(ts)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command runs: %w", err)
	}
	return runs, nil
}

// CommandTotals returns per-command run counts and summed durations,
// most-run commands first with ties broken by command id.
func (x *Index) CommandTotals() ([]CommandTotal, error) {
	const q = `
		SELECT command_id, COUNT(*), SUM(duration_ms)
		FROM command_runs
		GROUP BY command_id
		ORDER BY COUNT(*) DESC, command_id ASC
	`
	rows, err := x.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("query command totals: %w", err)
	}
	defer rows.Close()

	var totals []CommandTotal
	for rows.Next() {
		var t CommandTotal
		if err := rows.Scan(&t.CommandID, &t.Runs, &t.TotalDurationMS); err != nil {
			return nil, fmt.Errorf("scan command total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command totals: %w", err)
	}
	return totals, nil
}

// DayTotals returns run counts per UTC day, newest day first, at most
// days entries. Days with no runs are absent.
func (x *Index) DayTotals(days int) ([]DayTotal, error) {
	if days <= 0 || days > maxQueryLimit {
		days = maxQueryLimit
	}

	q := fmt.Sprintf(`
		SELECT substr(timestamp, 1, 10) AS day, COUNT(*)
		FROM command_runs
		GROUP BY day
		ORDER BY day DESC
		LIMIT %d
	`, days)
	rows, err := x.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("query day totals: %w", err)
	}
	defer rows.Close()

	var totals []DayTotal
	for rows.Next() {
		var t DayTotal
		if err := rows.Scan(&t.Day, &t.Runs); err != nil {
			return nil, fmt.Errorf("scan day total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day totals: %w", err)
	}
	return totals, nil
}

// Close releases the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// runFormatTime formats a time.Time as RFC3339Nano for query bounds.
// Zero time returns empty string.
func runFormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// runParseTime parses an RFC3339Nano string.
// Returns zero time on empty or invalid input.
func runParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
