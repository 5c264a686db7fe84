// Package tasks parses and updates tasks.md files: the per-change task
// list whose statuses are the ground truth reconciliation compares the
// audit log against.
package tasks

import "fmt"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusComplete   Status = "complete"
	StatusShelved    Status = "shelved"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusShelved
}

// Marker returns the checkbox marker written for the status.
func (s Status) Marker() byte {
	switch s {
	case StatusInProgress:
		return '~'
	case StatusComplete:
		return 'x'
	case StatusShelved:
		return '>'
	default:
		return ' '
	}
}

// ParseStatus maps a status label to a Status.
func ParseStatus(label string) (Status, bool) {
	switch Status(label) {
	case StatusPending, StatusInProgress, StatusComplete, StatusShelved:
		return Status(label), true
	}
	return "", false
}

// statusForMarker maps a checkbox marker to the status it denotes.
func statusForMarker(marker byte) (Status, bool) {
	switch marker {
	case ' ':
		return StatusPending, true
	case '~':
		return StatusInProgress, true
	case 'x', 'X':
		return StatusComplete, true
	case '>':
		return StatusShelved, true
	}
	return "", false
}

// Event represents a status transition trigger.
type Event string

const (
	Start    Event = "start"
	Complete Event = "complete"
	Shelve   Event = "shelve"
	Reopen   Event = "reopen"
)

// transitionTable defines all valid status transitions.
// Key: current status → event → new status.
var transitionTable = map[Status]map[Event]Status{
	StatusPending: {
		Start:    StatusInProgress,
		Complete: StatusComplete,
		Shelve:   StatusShelved,
	},
	StatusInProgress: {
		Complete: StatusComplete,
		Shelve:   StatusShelved,
	},
	StatusComplete: {
		Reopen: StatusPending,
	},
	StatusShelved: {
		Reopen: StatusPending,
	},
}

// ApplyTransition returns the new status for the given current status and
// event. Returns an error if the transition is not valid.
func ApplyTransition(current Status, event Event) (Status, error) {
	events, ok := transitionTable[current]
	if !ok {
		return "", fmt.Errorf("no transitions defined for status %q", current)
	}
	next, ok := events[event]
	if !ok {
		return "", fmt.Errorf("invalid transition: %q + %q", current, event)
	}
	return next, nil
}

// eventFor maps a target status to the event that reaches it.
func eventFor(target Status) (Event, bool) {
	switch target {
	case StatusInProgress:
		return Start, true
	case StatusComplete:
		return Complete, true
	case StatusShelved:
		return Shelve, true
	case StatusPending:
		return Reopen, true
	}
	return "", false
}

// Transition validates moving from current directly to target, expressed
// as a status pair the way the CLI receives it.
func Transition(current, target Status) error {
	if current == target {
		return fmt.Errorf("task is already %q", current)
	}
	event, ok := eventFor(target)
	if !ok {
		return fmt.Errorf("unknown status %q", target)
	}
	next, err := ApplyTransition(current, event)
	if err != nil {
		return err
	}
	if next != target {
		return fmt.Errorf("invalid transition: %q -> %q", current, target)
	}
	return nil
}
