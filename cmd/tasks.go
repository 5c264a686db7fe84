package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/changes"
	"github.com/kastheco/ito/internal/tasks"
	"github.com/spf13/cobra"
)

type taskJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Wave   int    `json:"wave"`
}

// executeTasksList prints the task list of one change with a completion
// footer. Exported for testing without cobra plumbing.
func executeTasksList(out io.Writer, itoDir, changeID string, jsonOut bool) error {
	path := changes.TasksPath(itoDir, changeID)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if _, derr := os.Stat(changes.Dir(itoDir)); derr != nil {
			return fmt.Errorf("no changes directory under %s", itoDir)
		}
		if jsonOut {
			fmt.Fprintln(out, "[]")
		} else {
			fmt.Fprintln(out, "No tasks found.")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read task list: %w", err)
	}

	f := tasks.Parse(string(raw))

	if jsonOut {
		list := make([]taskJSON, 0, len(f.Tasks))
		for _, t := range f.Tasks {
			list = append(list, taskJSON{ID: t.ID, Name: t.Name, Status: string(t.Status), Wave: t.Wave})
		}
		enc, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(enc))
		return nil
	}

	if len(f.Tasks) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}
	for _, t := range f.Tasks {
		st := paint(taskStatusStyle(t.Status), fmt.Sprintf("%-12s", t.Status))
		line := fmt.Sprintf("%s %-24s wave %-3d %s", st, t.ID, t.Wave, t.Name)
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	done, total := f.Progress()
	fmt.Fprintf(out, "\n%d/%d tasks complete\n", done, total)
	return nil
}

func taskStatusStyle(s tasks.Status) lipgloss.Style {
	switch s {
	case tasks.StatusComplete:
		return styleOp
	case tasks.StatusInProgress:
		return styleStatus
	default:
		return styleMuted
	}
}

// executeTasksSetStatus rewrites one task's status and records the
// transition in the audit log. Unless force is set the transition must be
// legal under the task state machine.
func executeTasksSetStatus(out io.Writer, projectRoot, itoDir, changeID, taskID, statusLabel string, force bool) error {
	to, ok := tasks.ParseStatus(statusLabel)
	if !ok {
		return fmt.Errorf("unknown status %q (pending, in-progress, complete, shelved)", statusLabel)
	}
	path := changes.TasksPath(itoDir, changeID)

	if !force {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read task list: %w", err)
		}
		t := tasks.Parse(string(raw)).Find(taskID)
		if t == nil {
			return fmt.Errorf("task %q not found in %s", taskID, path)
		}
		if err := tasks.Transition(t.Status, to); err != nil {
			return err
		}
	}

	from, err := tasks.SetStatus(path, taskID, to)
	if err != nil {
		return err
	}
	if err := emitEvent(projectRoot, itoDir, audit.EntityTask, taskID, audit.OpStatusChange,
		audit.WithScope(changeID), audit.WithFrom(string(from)), audit.WithTo(string(to))); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s → %s\n", taskID, from, to)
	return nil
}

// executeTasksAdd appends a new pending task to a change's task list and
// records the addition in the audit log.
func executeTasksAdd(out io.Writer, projectRoot, itoDir, changeID, taskID, name string, wave int) error {
	if wave < 1 {
		return fmt.Errorf("wave number must be >= 1, got %d", wave)
	}
	path := changes.TasksPath(itoDir, changeID)
	if err := tasks.AddTask(path, taskID, name, wave); err != nil {
		return err
	}
	if err := emitEvent(projectRoot, itoDir, audit.EntityTask, taskID, audit.OpAdd,
		audit.WithScope(changeID),
		audit.WithTo(string(tasks.StatusPending)),
		audit.WithMeta(map[string]int{"wave": wave})); err != nil {
		return err
	}
	fmt.Fprintf(out, "added task %s to %s (wave %d)\n", taskID, changeID, wave)
	return nil
}

// NewTasksCmd builds the `ito tasks` cobra command tree.
func NewTasksCmd() *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "inspect and update the tasks of a change",
	}

	// ito tasks list
	var (
		listChange string
		listJSON   bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list the tasks of a change with status and wave",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listChange == "" {
				return fmt.Errorf("--change is required")
			}
			_, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeTasksList(cmd.OutOrStdout(), itoDir, listChange, listJSON)
		},
	}
	listCmd.Flags().StringVar(&listChange, "change", "", "change whose tasks to list")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit a JSON array instead of text")
	tasksCmd.AddCommand(listCmd)

	// ito tasks set-status
	var (
		setChange string
		setForce  bool
	)
	setStatusCmd := &cobra.Command{
		Use:   "set-status <task-id> <status>",
		Short: "change one task's status and log the transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if setChange == "" {
				return fmt.Errorf("--change is required")
			}
			root, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeTasksSetStatus(cmd.OutOrStdout(), root, itoDir, setChange, args[0], args[1], setForce)
		},
	}
	setStatusCmd.Flags().StringVar(&setChange, "change", "", "change the task belongs to")
	setStatusCmd.Flags().BoolVar(&setForce, "force", false, "skip transition validation")
	tasksCmd.AddCommand(setStatusCmd)

	// ito tasks add
	var (
		addChange string
		addWave   int
	)
	addCmd := &cobra.Command{
		Use:   "add <task-id> <name>",
		Short: "append a new pending task to a change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addChange == "" {
				return fmt.Errorf("--change is required")
			}
			root, itoDir, err := ResolveProject()
			if err != nil {
				return err
			}
			return executeTasksAdd(cmd.OutOrStdout(), root, itoDir, addChange, args[0], args[1], addWave)
		},
	}
	addCmd.Flags().StringVar(&addChange, "change", "", "change to add the task to")
	addCmd.Flags().IntVar(&addWave, "wave", 1, "wave the task belongs to")
	tasksCmd.AddCommand(addCmd)

	return tasksCmd
}
