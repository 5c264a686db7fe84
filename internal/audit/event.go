// Package audit implements the append-only audit event log: the record
// format, durable and no-op writers, the reader and filter, multi-worktree
// aggregation, the streaming tail watcher, and the reconciliation engine
// that detects drift between the log and the tracked files on disk.
//
// Events are serialized as single-line JSON (JSONL) and are never modified
// or deleted after being appended. Corrections are recorded as new
// compensating events.
package audit

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the wire format version of Event. Bumped only on
// breaking changes; readers skip records with versions they do not know.
const SchemaVersion = 1

// Entity types.
const (
	EntityTask     = "task"
	EntityChange   = "change"
	EntityModule   = "module"
	EntityWave     = "wave"
	EntityPlanning = "planning"
	EntityConfig   = "config"
)

// Actors.
const (
	ActorCLI       = "cli"
	ActorReconcile = "reconcile"
	ActorRalph     = "ralph"
)

// Task operations.
const (
	OpCreate       = "create"
	OpStatusChange = "status_change"
	OpAdd          = "add"
)

// Change and module operations.
const (
	OpArchive         = "archive"
	OpChangeAdded     = "change_added"
	OpChangeCompleted = "change_completed"
)

// Wave operations.
const (
	OpUnlock = "unlock"
)

// Planning operations.
const (
	OpDecision    = "decision"
	OpBlocker     = "blocker"
	OpQuestion    = "question"
	OpNote        = "note"
	OpFocusChange = "focus_change"
)

// Config operations.
const (
	OpSet   = "set"
	OpUnset = "unset"
)

// OpReconciled marks a compensating event written by reconciliation.
const OpReconciled = "reconciled"

// Event is one immutable audit record describing a single state transition
// of a tracked entity. Within one log file, physical line order is the
// authoritative order even when timestamps are not monotonic.
type Event struct {
	Version  int             `json:"v"`
	TS       string          `json:"ts"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Scope    string          `json:"scope,omitempty"`
	Op       string          `json:"op"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Actor    string          `json:"actor"`
	By       string          `json:"by"`
	Meta     json.RawMessage `json:"meta,omitempty"`
	Ctx      EventContext    `json:"ctx"`
}

// EventContext carries session and git correlation fields captured at
// write time.
type EventContext struct {
	SessionID        string `json:"session_id"`
	HarnessSessionID string `json:"harness_session_id,omitempty"`
	Branch           string `json:"branch,omitempty"`
	Worktree         string `json:"worktree,omitempty"`
	Commit           string `json:"commit,omitempty"`
}

// EventOption is a functional option for configuring optional Event fields.
type EventOption func(*Event)

// WithScope sets the containing context, e.g. a change id.
func WithScope(scope string) EventOption {
	return func(e *Event) { e.Scope = scope }
}

// WithFrom sets the prior state value.
func WithFrom(from string) EventOption {
	return func(e *Event) { e.From = from }
}

// WithTo sets the new state value.
func WithTo(to string) EventOption {
	return func(e *Event) { e.To = to }
}

// WithActor overrides the default "cli" actor.
func WithActor(actor string) EventOption {
	return func(e *Event) { e.Actor = actor }
}

// WithBy sets the concrete identity of the actor.
func WithBy(by string) EventOption {
	return func(e *Event) { e.By = by }
}

// WithMeta attaches operation-specific metadata. The value must marshal to
// JSON; values that do not are dropped.
func WithMeta(v any) EventOption {
	return func(e *Event) {
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		e.Meta = raw
	}
}

// WithContext sets the session and git context.
func WithContext(ctx EventContext) EventOption {
	return func(e *Event) { e.Ctx = ctx }
}

// NewEvent builds an event with the schema version and a UTC timestamp at
// millisecond precision filled in. Actor defaults to "cli".
func NewEvent(entity, entityID, op string, opts ...EventOption) Event {
	e := Event{
		Version:  SchemaVersion,
		TS:       FormatTS(time.Now()),
		Entity:   entity,
		EntityID: entityID,
		Op:       op,
		Actor:    ActorCLI,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// FormatTS renders a timestamp in the wire format: RFC 3339 UTC with
// millisecond precision, e.g. 2026-02-08T14:30:00.000Z.
func FormatTS(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTS parses a wire timestamp. Returns the zero time on failure so
// unparsable timestamps sort first rather than erroring.
func ParseTS(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
