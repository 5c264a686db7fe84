package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/kastheco/ito/config"
	"github.com/kastheco/ito/internal/execlog"
	"github.com/spf13/cobra"
)

const statsSeparator = "────────────────────────────────────────"

type dayJSON struct {
	Day  string `json:"day"`
	Runs int64  `json:"runs"`
}

type statsJSON struct {
	Counts map[string]int64 `json:"counts"`
	Days   []dayJSON        `json:"days,omitempty"`
}

// executeStats ingests any new execution log lines into the rollup index
// and prints per-command run counts. Exported for testing without cobra
// plumbing.
func executeStats(out io.Writer, configDir string, days int, jsonOut bool) error {
	idx, err := execlog.NewIndex(execlog.IndexPath(configDir))
	if err != nil {
		return err
	}
	defer idx.Close()

	if _, err := idx.Ingest(execlog.LogRoot(configDir)); err != nil {
		return err
	}
	stats, err := execlog.ComputeCommandStats(idx)
	if err != nil {
		return err
	}

	var dayTotals []execlog.DayTotal
	if days > 0 {
		dayTotals, err = idx.DayTotals(days)
		if err != nil {
			return err
		}
	}

	if jsonOut {
		payload := statsJSON{Counts: stats.Counts}
		for _, d := range dayTotals {
			payload.Days = append(payload.Days, dayJSON{Day: d.Day, Runs: d.Runs})
		}
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}

	fmt.Fprintf(out, "%s\n%s\n", paint(styleHeading, "Ito Stats"), statsSeparator)
	fmt.Fprintln(out, "command_id: count")
	ids := make([]string, 0, len(stats.Counts))
	for id := range stats.Counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "%s: %d\n", id, stats.Counts[id])
	}

	if days > 0 {
		fmt.Fprintf(out, "\nLast %d days:\n", days)
		for _, d := range dayTotals {
			fmt.Fprintf(out, "  %s: %d\n", d.Day, d.Runs)
		}
	}
	return nil
}

// NewStatsCmd builds the `ito stats` command reporting command usage from
// the execution logs.
func NewStatsCmd() *cobra.Command {
	var (
		days    int
		jsonOut bool
	)
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "show how often each ito command has run",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			return executeStats(cmd.OutOrStdout(), configDir, days, jsonOut)
		},
	}
	statsCmd.Flags().IntVar(&days, "days", 0, "also show run counts for the last N days")
	statsCmd.Flags().BoolVar(&jsonOut, "json", false, "emit the stats as JSON")
	return statsCmd
}
