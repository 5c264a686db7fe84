package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kastheco/ito/cmd"
	"github.com/kastheco/ito/config"
	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/changes"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "check",
		Short: "Audit the health of the project state and event log",
		Long: `Checks the pieces every other command depends on:

  1. Config     (~/.config/ito readable)
  2. State dir  (changes/ and the audit dir present)
  3. Audit log  (parseable, no unreadable lines, semantically valid)

Exit code 0 if 100% healthy, exit code 1 otherwise.`,
		RunE: runCheck,
		// Suppress usage on error — health failures are not usage errors.
		SilenceUsage: true,
		// Suppress cobra's "Error: ..." line for the unhealthy sentinel.
		SilenceErrors: true,
	}
	return c
}

type healthCheck struct {
	name   string
	ok     bool
	skip   bool
	detail string
}

func runCheck(c *cobra.Command, args []string) error {
	out := c.OutOrStdout()
	var checks []healthCheck

	if configDir, err := config.GetConfigDir(); err != nil {
		checks = append(checks, healthCheck{name: "config", detail: err.Error()})
	} else {
		checks = append(checks, healthCheck{name: "config", ok: true, detail: configDir})
	}

	_, itoDir, rerr := cmd.ResolveProject()
	if rerr != nil {
		checks = append(checks, healthCheck{name: "state dir", detail: rerr.Error()})
	} else {
		checks = append(checks, healthCheck{name: "state dir", ok: true, detail: itoDir})
		checks = append(checks, stateChecks(itoDir)...)
	}

	renderChecks(out, checks)

	ok := 0
	for _, hc := range checks {
		if hc.ok || hc.skip {
			ok++
		}
	}
	total := len(checks)
	pct := 0
	if total > 0 {
		pct = ok * 100 / total
	}
	fmt.Fprintf(out, "\nHealth: %d/%d OK (%d%%)\n", ok, total, pct)

	if pct < 100 {
		return cmd.ErrUnhealthy
	}
	return nil
}

// stateChecks inspects a resolved state directory: the change layout, the
// audit log's parseability, its semantic consistency, and the session file.
func stateChecks(itoDir string) []healthCheck {
	var checks []healthCheck

	active, err := changes.List(itoDir)
	archived, _ := changes.ListArchived(itoDir)
	if err != nil {
		checks = append(checks, healthCheck{name: "changes", detail: err.Error()})
	} else {
		checks = append(checks, healthCheck{
			name: "changes", ok: true,
			detail: fmt.Sprintf("%d active, %d archived", len(active), len(archived)),
		})
	}

	res, err := audit.ReadLog(audit.LogPath(itoDir))
	switch {
	case err != nil:
		checks = append(checks, healthCheck{name: "audit log", detail: err.Error()})
	case res.Skipped() > 0:
		checks = append(checks, healthCheck{
			name:   "audit log",
			detail: fmt.Sprintf("%d events, %d unreadable lines", len(res.Events), res.Skipped()),
		})
	default:
		checks = append(checks, healthCheck{
			name: "audit log", ok: true,
			detail: fmt.Sprintf("%d events", len(res.Events)),
		})
	}

	report, err := audit.ValidateLog(itoDir, "")
	switch {
	case err != nil:
		checks = append(checks, healthCheck{name: "log consistency", detail: err.Error()})
	case !report.Valid:
		checks = append(checks, healthCheck{
			name:   "log consistency",
			detail: fmt.Sprintf("%d issues (run `ito audit validate`)", len(report.Issues)),
		})
	case len(report.Issues) > 0:
		checks = append(checks, healthCheck{
			name: "log consistency", ok: true,
			detail: fmt.Sprintf("%d warnings", len(report.Issues)),
		})
	default:
		checks = append(checks, healthCheck{name: "log consistency", ok: true, detail: "no issues"})
	}

	if raw, err := os.ReadFile(audit.SessionPath(itoDir)); err == nil {
		checks = append(checks, healthCheck{
			name: "session", ok: true,
			detail: strings.TrimSpace(string(raw)),
		})
	} else {
		checks = append(checks, healthCheck{name: "session", skip: true, detail: "no session yet"})
	}

	return checks
}

func renderChecks(out io.Writer, checks []healthCheck) {
	fmt.Fprintf(out, "\nProject health:\n")
	for _, hc := range checks {
		fmt.Fprintf(out, "  %s %-16s %s\n", checkGlyph(hc), hc.name, hc.detail)
	}
}

func checkGlyph(hc healthCheck) string {
	switch {
	case hc.skip:
		return "⊘"
	case hc.ok:
		return "✓"
	default:
		return "✗"
	}
}

func init() {
	rootCmd.AddCommand(newCheckCmd())
}
