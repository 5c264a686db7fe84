package audit

// EntityKey identifies one tracked entity: its type, its id, and the
// containing scope when there is one.
type EntityKey struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Scope    string `json:"scope,omitempty"`
}

// ArchivedState is the value materialized for an archive event carrying no
// explicit to value.
const ArchivedState = "archived"

// LogState is the last-known state per entity implied by a sequence of
// events taken in order.
type LogState struct {
	Entities   map[EntityKey]string
	EventCount int
}

// Materialize folds events into the last state per entity: a later event's
// to value wins, and an archive event without one sets the archived
// sentinel. Events with neither contribute nothing to state.
func Materialize(events []Event) LogState {
	state := LogState{
		Entities:   make(map[EntityKey]string),
		EventCount: len(events),
	}
	for _, e := range events {
		key := EntityKey{Entity: e.Entity, EntityID: e.EntityID, Scope: e.Scope}
		switch {
		case e.To != "":
			state.Entities[key] = e.To
		case e.Op == OpArchive:
			state.Entities[key] = ArchivedState
		}
	}
	return state
}
