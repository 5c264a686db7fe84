package audit

// Stats aggregates event counts for display.
type Stats struct {
	Scope       string         `json:"scope"`
	TotalEvents int            `json:"total_events"`
	ByEntity    map[string]int `json:"by_entity"`
	ByOp        map[string]int `json:"by_op"`
	ByActor     map[string]int `json:"by_actor"`
	ByScope     map[string]int `json:"by_scope"`
}

// StatsForLog computes event statistics over the audit log, optionally
// scoped to one change.
func StatsForLog(itoDir, changeID string) (Stats, error) {
	var f Filter
	if changeID != "" {
		f.Scope = changeID
	}
	res, err := ReadLogFiltered(LogPath(itoDir), f)
	if err != nil {
		return Stats{}, err
	}

	scope := changeID
	if scope == "" {
		scope = "project"
	}
	return ComputeStats(res.Events, scope), nil
}

// ComputeStats tallies events by entity, operation, actor, and scope.
func ComputeStats(events []Event, scope string) Stats {
	s := Stats{
		Scope:    scope,
		ByEntity: make(map[string]int),
		ByOp:     make(map[string]int),
		ByActor:  make(map[string]int),
		ByScope:  make(map[string]int),
	}
	for _, e := range events {
		s.TotalEvents++
		s.ByEntity[e.Entity]++
		s.ByOp[e.Op]++
		s.ByActor[e.Actor]++
		if e.Scope != "" {
			s.ByScope[e.Scope]++
		}
	}
	return s
}
