package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kastheco/ito/config"
	"github.com/kastheco/ito/internal/audit"
	"github.com/spf13/cobra"
)

const auditSeparator = "──────────────────────────────────────────────────"

// formatEventLine renders one event the way `audit log` and `audit stream`
// print it: truncated timestamp, padded actor, entity locator, operation,
// and the status transition when the event carries one.
func formatEventLine(e audit.Event) string {
	ts := e.TS
	if len(ts) > 19 {
		ts = ts[:19]
	}
	scope := e.Scope
	if scope == "" {
		scope = "-"
	}
	actor := fmt.Sprintf("%-10s", e.Actor)
	loc := e.Entity + "/" + e.EntityID
	var trans string
	switch {
	case e.From != "" && e.To != "":
		trans = e.From + " -> " + e.To
	case e.To != "":
		trans = "-> " + e.To
	case e.From != "":
		trans = e.From + " ->"
	}
	op := e.Op
	if stylingEnabled() {
		ts = styleMuted.Render(ts)
		actor = styleMuted.Render(actor)
		loc = styleEntity.Render(loc)
		op = styleOp.Render(op)
		trans = styleStatus.Render(trans)
	}
	line := fmt.Sprintf("%s  %s %s (%s)  %s  %s", ts, actor, loc, scope, op, trans)
	return strings.TrimRight(line, " ")
}

// executeAuditLog prints events from the project log, optionally filtered
// and truncated to the last limit entries. Exported for testing without
// cobra plumbing.
func executeAuditLog(out io.Writer, itoDir string, f audit.Filter, limit int, jsonOut bool) error {
	path := audit.LogPath(itoDir)
	var res audit.ReadResult
	var err error
	if f.Entity == "" && f.Scope == "" && f.Op == "" {
		res, err = audit.ReadLog(path)
	} else {
		res, err = audit.ReadLogFiltered(path, f)
	}
	if err != nil {
		return err
	}

	events := res.Events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	if jsonOut {
		if events == nil {
			events = []audit.Event{}
		}
		raw, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}

	if len(events) == 0 {
		fmt.Fprintln(out, "No audit events found.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintln(out, formatEventLine(e))
	}
	fmt.Fprintf(out, "\n%d events\n", len(events))
	if n := res.Skipped(); n > 0 {
		fmt.Fprintln(out, paint(styleError, fmt.Sprintf("Warning: skipped %d lines (malformed or unknown schema version)", n)))
	}
	return nil
}

type reconcileJSON struct {
	Scope         string   `json:"scope"`
	Drifts        []string `json:"drifts"`
	DriftCount    int      `json:"drift_count"`
	EventsWritten int      `json:"events_written"`
	Fix           bool     `json:"fix"`
}

// executeAuditReconcile compares log-implied state against the tracked
// files and reports the drift. With fix it also appends compensating
// events. Drift makes the command exit unhealthy even though the report
// itself succeeded.
func executeAuditReconcile(out io.Writer, itoDir, changeID string, fix, jsonOut bool) error {
	report, err := audit.RunReconcile(itoDir, changeID, fix, audit.NewFSWriter(itoDir))
	if err != nil {
		return err
	}

	if jsonOut {
		payload := reconcileJSON{
			Scope:         report.ScopedTo,
			Drifts:        []string{},
			DriftCount:    len(report.Drifts),
			EventsWritten: report.EventsWritten,
			Fix:           fix,
		}
		for _, d := range report.Drifts {
			payload.Drifts = append(payload.Drifts, d.String())
		}
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
	} else {
		fmt.Fprintf(out, "%s\n%s\n", paint(styleHeading, "Reconcile: "+report.ScopedTo), auditSeparator)
		if report.Clean() {
			fmt.Fprintln(out, "No drift detected. Audit log and files are in sync.")
		} else {
			fmt.Fprintf(out, "%d drift items found:\n\n", len(report.Drifts))
			for _, d := range report.Drifts {
				fmt.Fprintf(out, "  - %s\n", d)
			}
			fmt.Fprintln(out)
			if fix {
				fmt.Fprintf(out, "Wrote %d compensating events.\n", report.EventsWritten)
			} else {
				fmt.Fprintln(out, "Run with --fix to write compensating events.")
			}
		}
	}

	if !report.Clean() {
		return ErrUnhealthy
	}
	return nil
}

type validateJSON struct {
	Scope      string        `json:"scope"`
	EventCount int           `json:"event_count"`
	IssueCount int           `json:"issue_count"`
	Issues     []audit.Issue `json:"issues"`
	Valid      bool          `json:"valid"`
}

// executeAuditValidate runs the semantic checks over the log and prints
// the issues found. An invalid log makes the command exit unhealthy.
func executeAuditValidate(out io.Writer, itoDir, changeID string, jsonOut bool) error {
	report, err := audit.ValidateLog(itoDir, changeID)
	if err != nil {
		return err
	}
	scope := changeID
	if scope == "" {
		scope = "project"
	}

	if jsonOut {
		payload := validateJSON{
			Scope:      scope,
			EventCount: report.EventCount,
			IssueCount: len(report.Issues),
			Issues:     report.Issues,
			Valid:      report.Valid,
		}
		if payload.Issues == nil {
			payload.Issues = []audit.Issue{}
		}
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
	} else {
		fmt.Fprintf(out, "%s\n%s\n", paint(styleHeading, "Audit Validate: "+scope), auditSeparator)
		fmt.Fprintf(out, "Events: %d\n", report.EventCount)
		if len(report.Issues) == 0 {
			fmt.Fprintln(out, "No issues found.")
		} else {
			fmt.Fprintf(out, "%d issues found:\n", len(report.Issues))
			for _, is := range report.Issues {
				lv := is.Level
				if is.Level == audit.LevelError {
					lv = paint(styleError, lv)
				} else {
					lv = paint(styleStatus, lv)
				}
				fmt.Fprintf(out, "  - [%s] %s\n", lv, is.Message)
			}
		}
	}

	if !report.Valid {
		return ErrUnhealthy
	}
	return nil
}

// executeAuditStats aggregates event counts and prints them grouped by
// entity, operation, actor, and change.
func executeAuditStats(out io.Writer, itoDir, changeID string, jsonOut bool) error {
	stats, err := audit.StatsForLog(itoDir, changeID)
	if err != nil {
		return err
	}

	if jsonOut {
		raw, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}

	fmt.Fprintf(out, "%s\n%s\n", paint(styleHeading, "Audit Stats: "+stats.Scope), auditSeparator)
	fmt.Fprintf(out, "Total events: %d\n", stats.TotalEvents)
	writeCountSection(out, "By entity:", stats.ByEntity)
	writeCountSection(out, "By operation:", stats.ByOp)
	writeCountSection(out, "By actor:", stats.ByActor)
	writeCountSection(out, "By change:", stats.ByScope)
	return nil
}

// writeCountSection prints one header plus "k: v" block sorted by count
// descending, ties alphabetical. Empty sections are omitted entirely.
func writeCountSection(out io.Writer, header string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(out, "\n%s\n", header)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %d\n", k, counts[k])
	}
}

// executeAuditStream prints the tail of the log, then polls for newly
// appended events until ctx is done. With follow=false it stops after the
// initial batch.
func executeAuditStream(ctx context.Context, out io.Writer, itoDir string, scfg audit.StreamConfig, jsonOut, follow bool) error {
	s, initial, err := audit.OpenStream(itoDir, scfg)
	if err != nil {
		return err
	}
	for _, ex := range s.Excluded {
		label := ex.Worktree.Branch
		if label == "" {
			label = ex.Worktree.Path
		}
		fmt.Fprintln(out, paint(styleError, fmt.Sprintf("Warning: skipping worktree %s: %s", label, ex.Reason)))
	}
	if err := renderStreamEvents(out, initial, jsonOut, scfg.AllWorktrees); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	interval := scfg.PollInterval
	if interval <= 0 {
		interval = audit.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := renderStreamEvents(out, s.Poll(), jsonOut, scfg.AllWorktrees); err != nil {
				return err
			}
		}
	}
}

func renderStreamEvents(out io.Writer, events []audit.StreamEvent, jsonOut, labeled bool) error {
	for _, se := range events {
		if jsonOut {
			raw, err := json.Marshal(se)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(raw))
			continue
		}
		line := formatEventLine(se.Event)
		if labeled {
			line = paint(styleMuted, "["+se.Source+"]") + " " + line
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// NewAuditCmd builds the `ito audit` cobra command tree.
func NewAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "inspect the append-only audit event log",
	}

	// ito audit log
	var (
		logChange string
		logEntity string
		logOp     string
		logLimit  int
		logJSON   bool
	)
	logCmd := &cobra.Command{
		Use:     "log",
		Aliases: []string{"lo"},
		Short:   "show recorded events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			f := audit.Filter{Entity: logEntity, Scope: logChange, Op: logOp}
			return executeAuditLog(cmd.OutOrStdout(), itoDir, f, logLimit, logJSON)
		},
	}
	logCmd.Flags().StringVar(&logChange, "change", "", "only events scoped to this change")
	logCmd.Flags().StringVar(&logEntity, "entity", "", "only events for this entity type (task, change, wave, ...)")
	logCmd.Flags().StringVar(&logOp, "op", "", "only events with this operation")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "show only the last N events")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "emit a JSON array instead of text")
	auditCmd.AddCommand(logCmd)

	// ito audit reconcile
	var (
		recChange string
		recFix    bool
		recJSON   bool
	)
	reconcileCmd := &cobra.Command{
		Use:     "reconcile",
		Aliases: []string{"re"},
		Short:   "detect drift between the log and the tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeAuditReconcile(cmd.OutOrStdout(), itoDir, recChange, recFix, recJSON)
		},
	}
	reconcileCmd.Flags().StringVar(&recChange, "change", "", "reconcile a single change instead of the whole project")
	reconcileCmd.Flags().BoolVar(&recFix, "fix", false, "append compensating events for the drift found")
	reconcileCmd.Flags().BoolVar(&recJSON, "json", false, "emit the report as JSON")
	auditCmd.AddCommand(reconcileCmd)

	// ito audit validate
	var (
		valChange string
		valJSON   bool
	)
	validateCmd := &cobra.Command{
		Use:     "validate",
		Aliases: []string{"va"},
		Short:   "check the log for semantic inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeAuditValidate(cmd.OutOrStdout(), itoDir, valChange, valJSON)
		},
	}
	validateCmd.Flags().StringVar(&valChange, "change", "", "validate only events scoped to this change")
	validateCmd.Flags().BoolVar(&valJSON, "json", false, "emit the report as JSON")
	auditCmd.AddCommand(validateCmd)

	// ito audit stats
	var (
		stChange string
		stJSON   bool
	)
	statsCmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"st"},
		Short:   "aggregate event counts by entity, operation, and actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeAuditStats(cmd.OutOrStdout(), itoDir, stChange, stJSON)
		},
	}
	statsCmd.Flags().StringVar(&stChange, "change", "", "count only events scoped to this change")
	statsCmd.Flags().BoolVar(&stJSON, "json", false, "emit the stats as JSON")
	auditCmd.AddCommand(statsCmd)

	// ito audit stream
	var (
		streamAll      bool
		streamLast     int
		streamInterval time.Duration
		streamJSON     bool
	)
	streamCmd := &cobra.Command{
		Use:     "stream",
		Aliases: []string{"sm"},
		Short:   "tail the audit log and follow new events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			cfg := config.LoadConfig()
			if streamAll && !cfg.AreWorktreesEnabled() {
				return fmt.Errorf("worktree aggregation is disabled in config")
			}
			scfg := audit.StreamConfig{
				PollInterval: streamInterval,
				AllWorktrees: streamAll,
				Last:         streamLast,
			}
			if scfg.PollInterval == 0 {
				scfg.PollInterval = time.Duration(cfg.StreamPollInterval) * time.Millisecond
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return executeAuditStream(ctx, cmd.OutOrStdout(), itoDir, scfg, streamJSON, true)
		},
	}
	streamCmd.Flags().BoolVar(&streamAll, "all-worktrees", false, "include sibling worktrees' logs")
	streamCmd.Flags().IntVar(&streamLast, "last", 10, "events to show from the existing log before following")
	streamCmd.Flags().DurationVar(&streamInterval, "interval", 0, "poll interval (default from config)")
	streamCmd.Flags().BoolVar(&streamJSON, "json", false, "emit one JSON object per event")
	auditCmd.AddCommand(streamCmd)

	return auditCmd
}
