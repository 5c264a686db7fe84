package audit

import "fmt"

// Issue levels. Warnings keep a report valid; errors do not.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Issue is one semantic problem found in an event sequence.
type Issue struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	EventIndex int    `json:"event_index"`
}

// ValidationReport summarizes semantic validation of the audit log.
type ValidationReport struct {
	EventCount int     `json:"event_count"`
	Issues     []Issue `json:"issues"`
	Valid      bool    `json:"valid"`
}

// ValidateLog runs semantic checks over the audit log, optionally scoped
// to one change.
func ValidateLog(itoDir, changeID string) (ValidationReport, error) {
	var f Filter
	if changeID != "" {
		f.Scope = changeID
	}
	res, err := ReadLogFiltered(LogPath(itoDir), f)
	if err != nil {
		return ValidationReport{}, err
	}

	issues := Validate(res.Events)

	valid := true
	for _, issue := range issues {
		if issue.Level == LevelError {
			valid = false
			break
		}
	}

	return ValidationReport{
		EventCount: len(res.Events),
		Issues:     issues,
		Valid:      valid,
	}, nil
}

// Validate runs every semantic check against a sequence of events and
// returns the issues sorted by event index.
func Validate(events []Event) []Issue {
	var issues []Issue
	issues = append(issues, checkDuplicateCreates(events)...)
	issues = append(issues, checkStatusTransitions(events)...)
	issues = append(issues, checkTimestampOrdering(events)...)

	// Checks run per category, so indexes arrive out of order. Insertion
	// sort keeps ties in category order without a comparator.
	for i := 1; i < len(issues); i++ {
		for j := i; j > 0 && issues[j-1].EventIndex > issues[j].EventIndex; j-- {
			issues[j-1], issues[j] = issues[j], issues[j-1]
		}
	}
	return issues
}

func checkDuplicateCreates(events []Event) []Issue {
	var issues []Issue
	seen := make(map[EntityKey]bool)

	for i, e := range events {
		if e.Op != OpCreate && e.Op != OpAdd {
			continue
		}
		key := EntityKey{Entity: e.Entity, EntityID: e.EntityID, Scope: e.Scope}
		if seen[key] {
			scope := "none"
			if e.Scope != "" {
				scope = fmt.Sprintf("%q", e.Scope)
			}
			issues = append(issues, Issue{
				Level:      LevelWarning,
				Message:    fmt.Sprintf("Duplicate %s event for %s/%s (scope: %s)", e.Op, e.Entity, e.EntityID, scope),
				EventIndex: i,
			})
			continue
		}
		seen[key] = true
	}
	return issues
}

func checkStatusTransitions(events []Event) []Issue {
	var issues []Issue
	lastStatus := make(map[EntityKey]string)

	for i, e := range events {
		key := EntityKey{Entity: e.Entity, EntityID: e.EntityID, Scope: e.Scope}

		if e.Op != OpStatusChange {
			// Create and add events seed the tracked status.
			if e.To != "" {
				lastStatus[key] = e.To
			}
			continue
		}

		if last, ok := lastStatus[key]; ok && e.From != "" && last != e.From {
			issues = append(issues, Issue{
				Level:      LevelWarning,
				Message:    fmt.Sprintf("Status transition mismatch for %s/%s: expected from='%s' but event says from='%s'", e.Entity, e.EntityID, last, e.From),
				EventIndex: i,
			})
		}

		if e.To != "" {
			lastStatus[key] = e.To
		}
	}
	return issues
}

func checkTimestampOrdering(events []Event) []Issue {
	var issues []Issue
	for i := 1; i < len(events); i++ {
		if events[i].TS < events[i-1].TS {
			issues = append(issues, Issue{
				Level:      LevelWarning,
				Message:    fmt.Sprintf("Timestamp ordering violation: event %d (%s) is earlier than event %d (%s)", i+1, events[i].TS, i, events[i-1].TS),
				EventIndex: i,
			})
		}
	}
	return issues
}
