package audit

import (
	"fmt"
	"os"
	"sort"

	"github.com/kastheco/ito/internal/changes"
	"github.com/kastheco/ito/internal/tasks"
)

// FileState maps entity keys to the value observed in the tracked files.
// It is assembled fresh on every reconciliation pass and has no identity
// beyond the call that built it.
type FileState map[EntityKey]string

// DriftKind classifies one reconciliation finding.
type DriftKind string

const (
	// DriftUnlogged marks a key the files track but the log never saw.
	DriftUnlogged DriftKind = "unlogged"
	// DriftMismatch marks a key where log and files disagree.
	DriftMismatch DriftKind = "mismatch"
	// DriftOrphaned marks a key the log tracks with no file entry left.
	DriftOrphaned DriftKind = "orphaned"
)

// Drift is one discrepancy between log-implied and file-observed state.
type Drift struct {
	Kind       DriftKind `json:"kind"`
	Key        EntityKey `json:"key"`
	LogStatus  string    `json:"log_status,omitempty"`
	FileStatus string    `json:"file_status,omitempty"`
}

func (d Drift) String() string {
	loc := d.Key.Entity + "/" + d.Key.EntityID
	if d.Key.Scope != "" {
		loc += " (scope " + d.Key.Scope + ")"
	}
	switch d.Kind {
	case DriftUnlogged:
		return fmt.Sprintf("unlogged: %s: file status %q has no audit events", loc, d.FileStatus)
	case DriftOrphaned:
		return fmt.Sprintf("orphaned: %s: audit status %q has no file entry", loc, d.LogStatus)
	default:
		return fmt.Sprintf("mismatch: %s: audit=%q file=%q", loc, d.LogStatus, d.FileStatus)
	}
}

// ReconcileReport is the outcome of one reconciliation pass.
type ReconcileReport struct {
	Drifts        []Drift `json:"drifts"`
	EventsWritten int     `json:"events_written"`
	ScopedTo      string  `json:"scoped_to"`
}

// Clean reports whether the pass found no drift.
func (r ReconcileReport) Clean() bool { return len(r.Drifts) == 0 }

// ComputeDrift compares log-implied state against file-observed state and
// returns the discrepancies sorted by entity, id, then scope so output is
// stable across runs.
func ComputeDrift(logState LogState, fileState FileState) []Drift {
	var drifts []Drift

	for key, fileVal := range fileState {
		logVal, ok := logState.Entities[key]
		switch {
		case !ok:
			drifts = append(drifts, Drift{Kind: DriftUnlogged, Key: key, FileStatus: fileVal})
		case logVal != fileVal:
			drifts = append(drifts, Drift{Kind: DriftMismatch, Key: key, LogStatus: logVal, FileStatus: fileVal})
		}
	}

	for key, logVal := range logState.Entities {
		// Only tasks can be orphaned; entities like config never have a
		// file entry to begin with.
		if key.Entity != EntityTask {
			continue
		}
		if _, ok := fileState[key]; !ok {
			drifts = append(drifts, Drift{Kind: DriftOrphaned, Key: key, LogStatus: logVal})
		}
	}

	sort.Slice(drifts, func(i, j int) bool {
		a, b := drifts[i].Key, drifts[j].Key
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Scope < b.Scope
	})

	return drifts
}

// CompensatingEvents builds the events that bring the log back in line
// with observed file state. Each event records the drift it corrects in
// its meta. The scope argument wins over each drift key's own scope when
// set.
func CompensatingEvents(drifts []Drift, scope string, ctx EventContext) []Event {
	events := make([]Event, 0, len(drifts))
	for _, d := range drifts {
		sc := scope
		if sc == "" {
			sc = d.Key.Scope
		}
		opts := []EventOption{
			WithScope(sc),
			WithActor(ActorReconcile),
			WithBy("@reconcile"),
			WithMeta(map[string]string{"reason": d.String()}),
			WithContext(ctx),
		}
		switch d.Kind {
		case DriftUnlogged:
			opts = append(opts, WithTo(d.FileStatus))
		case DriftMismatch:
			opts = append(opts, WithFrom(d.LogStatus), WithTo(d.FileStatus))
		case DriftOrphaned:
			opts = append(opts, WithFrom(d.LogStatus))
		}
		events = append(events, NewEvent(d.Key.Entity, d.Key.EntityID, OpReconciled, opts...))
	}
	return events
}

// BuildFileState scans one change's tasks.md and returns the observed
// status per task key. A missing tasks.md yields an empty state; any
// other read failure is surfaced, since reconciling against a partial
// snapshot would mislead.
func BuildFileState(itoDir, changeID string) (FileState, error) {
	state := make(FileState)

	raw, err := os.ReadFile(changes.TasksPath(itoDir, changeID))
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, reconcileInputErr(fmt.Sprintf("read tasks for change %q", changeID), err)
	}

	for _, task := range tasks.Parse(string(raw)).Tasks {
		key := EntityKey{Entity: EntityTask, EntityID: task.ID, Scope: changeID}
		state[key] = string(task.Status)
	}
	return state, nil
}

// RunReconcile runs one reconciliation pass. With a change id it covers
// that change; without one it covers every active change in the project.
// With fix set, compensating events for detected drift are appended
// through w; a failed append surfaces immediately with the partial report.
func RunReconcile(itoDir, changeID string, fix bool, w Writer) (ReconcileReport, error) {
	if w == nil {
		w = NopWriter{}
	}
	if changeID != "" {
		return reconcileChange(itoDir, changeID, fix, w)
	}

	report := ReconcileReport{ScopedTo: "project"}

	all, err := changes.List(itoDir)
	if err != nil {
		return report, reconcileInputErr("list changes", err)
	}
	for _, ch := range all {
		sub, err := reconcileChange(itoDir, ch.ID, fix, w)
		report.Drifts = append(report.Drifts, sub.Drifts...)
		report.EventsWritten += sub.EventsWritten
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func reconcileChange(itoDir, changeID string, fix bool, w Writer) (ReconcileReport, error) {
	report := ReconcileReport{ScopedTo: changeID}

	res, err := ReadLogFiltered(LogPath(itoDir), Filter{Entity: EntityTask, Scope: changeID})
	if err != nil {
		return report, err
	}
	logState := Materialize(res.Events)

	fileState, err := BuildFileState(itoDir, changeID)
	if err != nil {
		return report, err
	}

	report.Drifts = ComputeDrift(logState, fileState)

	if fix && len(report.Drifts) > 0 {
		ctx := ResolveContext(itoDir)
		for _, e := range CompensatingEvents(report.Drifts, changeID, ctx) {
			if err := w.Append(e); err != nil {
				return report, err
			}
			report.EventsWritten++
		}
	}

	return report, nil
}
