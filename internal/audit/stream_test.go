package audit_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/ito/internal/audit"
)

func TestCursorStringRoundTrip(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir, taskEvent("1.1", audit.OpCreate, "", "pending"))

	_, cur, err := audit.ReadInitial(audit.LogPath(itoDir))
	require.NoError(t, err)
	require.False(t, cur.IsZero())

	parsed, err := audit.ParseCursor(cur.String())
	require.NoError(t, err)
	assert.Equal(t, cur, parsed)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "v1", "v2:1:2:3:4", "v1:1:2:3", "v1:a:b:c:d"} {
		_, err := audit.ParseCursor(s)
		assert.Error(t, err, "cursor %q should not parse", s)
	}
}

func TestReadInitialThenImmediatePollYieldsNothing(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir,
		taskEvent("1.1", audit.OpCreate, "", "pending"),
		taskEvent("1.2", audit.OpCreate, "", "pending"),
	)
	logPath := audit.LogPath(itoDir)

	res, cur, err := audit.ReadInitial(logPath)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	poll, next, resynced, err := audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.Empty(t, poll.Events)
	assert.False(t, resynced)
	assert.Equal(t, cur, next)
}

func TestPollSeesOnlyNewEvents(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir, taskEvent("1.1", audit.OpCreate, "", "pending"))
	logPath := audit.LogPath(itoDir)

	_, cur, err := audit.ReadInitial(logPath)
	require.NoError(t, err)

	appendEvents(t, itoDir, taskEvent("1.2", audit.OpCreate, "", "pending"))

	poll, cur, resynced, err := audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.False(t, resynced)
	require.Len(t, poll.Events, 1)
	assert.Equal(t, "1.2", poll.Events[0].EntityID)

	// And nothing further on the advanced cursor.
	poll, _, _, err = audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.Empty(t, poll.Events)
}

func TestPollOnMissingFile(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	logPath := audit.LogPath(itoDir)

	res, cur, err := audit.ReadInitial(logPath)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.True(t, cur.IsZero())

	poll, cur, resynced, err := audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.Empty(t, poll.Events)
	assert.False(t, resynced)

	// Once the log appears, the zero cursor picks everything up.
	appendEvents(t, itoDir, taskEvent("1.1", audit.OpCreate, "", "pending"))
	poll, _, resynced, err = audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.False(t, resynced)
	assert.Len(t, poll.Events, 1)
}

func TestPollResyncsAfterTruncation(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir,
		taskEvent("1.1", audit.OpCreate, "", "pending"),
		taskEvent("1.2", audit.OpCreate, "", "pending"),
		taskEvent("1.3", audit.OpCreate, "", "pending"),
	)
	logPath := audit.LogPath(itoDir)

	_, cur, err := audit.ReadInitial(logPath)
	require.NoError(t, err)

	// The log is truncated out from under the cursor and one fresh event
	// is written.
	require.NoError(t, os.Truncate(logPath, 0))
	appendEvents(t, itoDir, taskEvent("2.1", audit.OpCreate, "", "pending"))

	poll, cur, resynced, err := audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.True(t, resynced)
	require.Len(t, poll.Events, 1)
	assert.Equal(t, "2.1", poll.Events[0].EntityID)

	poll, _, resynced, err = audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.False(t, resynced)
	assert.Empty(t, poll.Events)
}

func TestPollResyncsAfterReplacement(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir,
		taskEvent("1.1", audit.OpCreate, "", "pending"),
		taskEvent("1.2", audit.OpCreate, "", "pending"),
		taskEvent("1.3", audit.OpCreate, "", "pending"),
	)
	logPath := audit.LogPath(itoDir)

	_, cur, err := audit.ReadInitial(logPath)
	require.NoError(t, err)

	// Swap in a shorter replacement file, as an external rotation would.
	require.NoError(t, os.Remove(logPath))
	appendEvents(t, itoDir, taskEvent("9.9", audit.OpCreate, "", "pending"))

	poll, _, resynced, err := audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.True(t, resynced)
	require.Len(t, poll.Events, 1)
	assert.Equal(t, "9.9", poll.Events[0].EntityID)
}

func TestPollLeavesPartialLineForNextRound(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir, taskEvent("1.1", audit.OpCreate, "", "pending"))
	logPath := audit.LogPath(itoDir)

	_, cur, err := audit.ReadInitial(logPath)
	require.NoError(t, err)

	full, err := json.Marshal(taskEvent("1.2", audit.OpCreate, "", "pending"))
	require.NoError(t, err)

	// A write in progress: the first half of a line, no newline yet.
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(full[:10])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	poll, cur, resynced, err := audit.PollNew(logPath, cur)
	require.NoError(t, err)
	assert.False(t, resynced)
	assert.Empty(t, poll.Events, "an unfinished line must not be consumed")
	assert.Zero(t, poll.Skipped())

	// The write completes; the whole line arrives in one piece.
	f, err = os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(append(full[10:], '\n'))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	poll, _, _, err = audit.PollNew(logPath, cur)
	require.NoError(t, err)
	require.Len(t, poll.Events, 1)
	assert.Equal(t, "1.2", poll.Events[0].EntityID)
	assert.Zero(t, poll.Skipped())
}

func TestOpenStreamTailsLastN(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	var events []audit.Event
	for i := 0; i < 20; i++ {
		e := taskEvent("", audit.OpCreate, "", "pending")
		e.EntityID = "t-" + string(rune('a'+i))
		events = append(events, e)
	}
	appendEvents(t, itoDir, events...)

	cfg := audit.DefaultStreamConfig()
	cfg.Last = 5

	s, initial, err := audit.OpenStream(itoDir, cfg)
	require.NoError(t, err)
	require.Len(t, initial, 5)
	assert.Equal(t, "t-p", initial[0].Event.EntityID)
	assert.Equal(t, "main", initial[0].Source)
	assert.False(t, s.MainCursor().IsZero())
}

func TestStreamPollPicksUpAppends(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir, taskEvent("1.1", audit.OpCreate, "", "pending"))

	s, initial, err := audit.OpenStream(itoDir, audit.DefaultStreamConfig())
	require.NoError(t, err)
	assert.Len(t, initial, 1)

	assert.Empty(t, s.Poll())

	appendEvents(t, itoDir,
		taskEvent("1.2", audit.OpCreate, "", "pending"),
		taskEvent("1.3", audit.OpCreate, "", "pending"),
	)

	out := s.Poll()
	require.Len(t, out, 2)
	assert.Equal(t, "1.2", out[0].Event.EntityID)
	assert.Equal(t, "1.3", out[1].Event.EntityID)
	assert.Equal(t, "main", out[0].Source)

	assert.Empty(t, s.Poll())
}

func TestOpenStreamResumesFromCursor(t *testing.T) {
	itoDir := filepath.Join(t.TempDir(), ".ito")
	appendEvents(t, itoDir, taskEvent("1.1", audit.OpCreate, "", "pending"))

	_, cur, err := audit.ReadInitial(audit.LogPath(itoDir))
	require.NoError(t, err)

	appendEvents(t, itoDir,
		taskEvent("1.2", audit.OpCreate, "", "pending"),
		taskEvent("1.3", audit.OpCreate, "", "pending"),
	)

	cfg := audit.DefaultStreamConfig()
	cfg.StartCursor = cur

	_, initial, err := audit.OpenStream(itoDir, cfg)
	require.NoError(t, err)
	require.Len(t, initial, 2, "resume should deliver everything after the cursor")
	assert.Equal(t, "1.2", initial[0].Event.EntityID)
}

func TestDefaultStreamConfig(t *testing.T) {
	cfg := audit.DefaultStreamConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10, cfg.Last)
	assert.False(t, cfg.AllWorktrees)
	assert.True(t, cfg.StartCursor.IsZero())
}
