package execlog

import (
	"os"
	"path/filepath"
)

// CommandStats maps command ids to execution counts. Every known command
// is present even with a zero count; commands observed in the logs but
// absent from the known list are included too.
type CommandStats struct {
	Counts map[string]int64 `json:"counts"`
}

// ComputeCommandStats builds usage counts from an index that has already
// ingested the execution logs.
func ComputeCommandStats(idx *Index) (CommandStats, error) {
	counts := make(map[string]int64, len(KnownCommandIDs()))
	for _, id := range KnownCommandIDs() {
		counts[id] = 0
	}

	totals, err := idx.CommandTotals()
	if err != nil {
		return CommandStats{}, err
	}
	for _, t := range totals {
		counts[t.CommandID] += t.Runs
	}

	return CommandStats{Counts: counts}, nil
}

// CollectJSONLFiles returns every .jsonl file under dir, recursively.
// Directories or entries that cannot be read are silently skipped.
func CollectJSONLFiles(dir string) []string {
	var out []string
	collectJSONLFiles(dir, &out)
	return out
}

func collectJSONLFiles(dir string, out *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			collectJSONLFiles(path, out)
			continue
		}
		if filepath.Ext(path) == ".jsonl" {
			*out = append(*out, path)
		}
	}
}

// KnownCommandIDs returns the static list of command ids shipped with the
// CLI, used to zero-fill the stats map so unused commands still show up.
func KnownCommandIDs() []string {
	return []string{
		"ito.setup",
		"ito.check",
		"ito.debug",
		"ito.reset",
		"ito.stats",
		"ito.version",
		"ito.audit.log",
		"ito.audit.reconcile",
		"ito.audit.validate",
		"ito.audit.stats",
		"ito.audit.stream",
		"ito.tasks.list",
		"ito.tasks.set-status",
		"ito.tasks.add",
		"ito.changes.list",
		"ito.changes.create",
		"ito.changes.archive",
	}
}
