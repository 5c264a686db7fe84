package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/changes"
	"github.com/spf13/cobra"
)

type changeJSON struct {
	ID         string `json:"id"`
	Archived   bool   `json:"archived"`
	TasksDone  int    `json:"tasks_done"`
	TasksTotal int    `json:"tasks_total"`
}

// executeChangesList prints the project's changes with task progress.
// Exported for testing without cobra plumbing.
func executeChangesList(out io.Writer, itoDir string, archived, jsonOut bool) error {
	var (
		list []changes.Change
		err  error
	)
	if archived {
		list, err = changes.ListArchived(itoDir)
	} else {
		list, err = changes.List(itoDir)
	}
	if err != nil {
		return err
	}

	if jsonOut {
		rows := make([]changeJSON, 0, len(list))
		for _, c := range list {
			done, total, _ := changes.Progress(itoDir, c.ID)
			if c.Archived {
				done, total = 0, 0
			}
			rows = append(rows, changeJSON{ID: c.ID, Archived: c.Archived, TasksDone: done, TasksTotal: total})
		}
		raw, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No changes found.")
		return nil
	}
	for _, c := range list {
		if c.Archived {
			line := fmt.Sprintf("%-28s %s", c.ID, paint(styleMuted, "(archived)"))
			fmt.Fprintln(out, strings.TrimRight(line, " "))
			continue
		}
		done, total, err := changes.Progress(itoDir, c.ID)
		if err != nil {
			return err
		}
		id := paint(styleEntity, fmt.Sprintf("%-28s", c.ID))
		line := fmt.Sprintf("%s %d/%d tasks", id, done, total)
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	return nil
}

// executeChangesCreate scaffolds a new change directory and records its
// creation in the audit log.
func executeChangesCreate(out io.Writer, projectRoot, itoDir, changeID string) error {
	if err := changes.Create(itoDir, changeID); err != nil {
		return err
	}
	if err := emitEvent(projectRoot, itoDir, audit.EntityChange, changeID, audit.OpCreate); err != nil {
		return err
	}
	fmt.Fprintf(out, "created change: %s\n", changeID)
	return nil
}

// executeChangesArchive moves a change into the archive and records the
// archival in the audit log.
func executeChangesArchive(out io.Writer, projectRoot, itoDir, changeID string) error {
	if err := changes.Archive(itoDir, changeID); err != nil {
		return err
	}
	if err := emitEvent(projectRoot, itoDir, audit.EntityChange, changeID, audit.OpArchive); err != nil {
		return err
	}
	fmt.Fprintf(out, "archived change: %s\n", changeID)
	return nil
}

// NewChangesCmd builds the `ito changes` cobra command tree.
func NewChangesCmd() *cobra.Command {
	changesCmd := &cobra.Command{
		Use:   "changes",
		Short: "manage the project's change directories",
	}

	// ito changes list
	var (
		listArchived bool
		listJSON     bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list changes with task progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeChangesList(cmd.OutOrStdout(), itoDir, listArchived, listJSON)
		},
	}
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "list archived changes instead of active ones")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit a JSON array instead of text")
	changesCmd.AddCommand(listCmd)

	// ito changes create
	createCmd := &cobra.Command{
		Use:   "create <change-id>",
		Short: "scaffold a new change directory with an empty task list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeChangesCreate(cmd.OutOrStdout(), root, itoDir, args[0])
		},
	}
	changesCmd.AddCommand(createCmd)

	// ito changes archive
	archiveCmd := &cobra.Command{
		Use:   "archive <change-id>",
		Short: "move a change into the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeChangesArchive(cmd.OutOrStdout(), root, itoDir, args[0])
		},
	}
	changesCmd.AddCommand(archiveCmd)

	return changesCmd
}
