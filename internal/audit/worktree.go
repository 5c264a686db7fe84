package audit

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Worktree describes one git working tree associated with the project.
type Worktree struct {
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
	IsMain bool   `json:"is_main"`
}

// SourcedEvent pairs an event with the worktree whose log held it.
type SourcedEvent struct {
	Event    Event    `json:"event"`
	Worktree Worktree `json:"worktree"`
}

// ExcludedWorktree records a worktree whose log could not be read.
type ExcludedWorktree struct {
	Worktree Worktree `json:"worktree"`
	Reason   string   `json:"reason"`
}

// AggregateResult holds the merged event sequence plus everything that
// did not make it in: worktrees with no log yet, worktrees excluded for
// unreadable logs, and skipped-line tallies.
type AggregateResult struct {
	Events       []SourcedEvent     `json:"events"`
	WithoutLog   []Worktree         `json:"without_log,omitempty"`
	Excluded     []ExcludedWorktree `json:"excluded,omitempty"`
	Malformed    int                `json:"malformed"`
	WrongVersion int                `json:"wrong_version"`
}

// DiscoverWorktrees lists the git worktrees for the repository containing
// dir. Outside a repository it returns an empty set; a git binary that
// cannot run at all is a discovery error.
func DiscoverWorktrees(dir string) ([]Worktree, error) {
	out, err := exec.Command("git", "-C", dir, "worktree", "list", "--porcelain").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, discoveryErr("run git worktree list", err)
	}
	return parseWorktreeList(string(out)), nil
}

// parseWorktreeList parses `git worktree list --porcelain` output. Bare
// entries are dropped; the first kept entry is the main worktree.
func parseWorktreeList(out string) []Worktree {
	var wts []Worktree
	var cur Worktree
	var active, bare bool

	flush := func() {
		if active && !bare {
			cur.IsMain = len(wts) == 0
			wts = append(wts, cur)
		}
		cur = Worktree{}
		active, bare = false, false
	}

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = Worktree{Path: strings.TrimPrefix(line, "worktree ")}
			active = true
		case strings.HasPrefix(line, "branch refs/heads/"):
			cur.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "bare":
			bare = true
		case line == "":
			flush()
		}
	}
	flush()

	return wts
}

// WorktreeLogPath resolves the audit log path inside one worktree's
// state directory.
func WorktreeLogPath(wt Worktree, itoDirName string) string {
	return LogPath(filepath.Join(wt.Path, itoDirName))
}

// AggregateEvents reads every worktree's log and merges the events into
// one sequence ordered by timestamp, then worktree path, then position
// within the source log. Identical inputs always produce identical
// output order even when timestamps collide across worktrees. Unreadable
// logs exclude their worktree from the merge without failing it.
func AggregateEvents(worktrees []Worktree, itoDirName string) AggregateResult {
	var agg AggregateResult

	for _, wt := range worktrees {
		path := WorktreeLogPath(wt, itoDirName)
		if _, err := os.Stat(path); err != nil {
			agg.WithoutLog = append(agg.WithoutLog, wt)
			continue
		}
		res, err := ReadLog(path)
		if err != nil {
			agg.Excluded = append(agg.Excluded, ExcludedWorktree{Worktree: wt, Reason: err.Error()})
			continue
		}
		agg.Malformed += res.Malformed
		agg.WrongVersion += res.WrongVersion
		for _, e := range res.Events {
			agg.Events = append(agg.Events, SourcedEvent{Event: e, Worktree: wt})
		}
	}

	// Events from one worktree enter in physical order, so a stable sort
	// on (timestamp, path) preserves per-log position as the final tie
	// break.
	sort.SliceStable(agg.Events, func(i, j int) bool {
		a, b := agg.Events[i], agg.Events[j]
		if a.Event.TS != b.Event.TS {
			return a.Event.TS < b.Event.TS
		}
		return a.Worktree.Path < b.Worktree.Path
	})

	return agg
}
