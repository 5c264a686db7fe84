package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kastheco/ito/cmd"
	"github.com/kastheco/ito/config"
	"github.com/kastheco/ito/internal/audit"
	"github.com/kastheco/ito/internal/execlog"
	"github.com/kastheco/ito/internal/gitutil"
	initcmd "github.com/kastheco/ito/internal/initcmd"
	sentrypkg "github.com/kastheco/ito/internal/sentry"
	"github.com/kastheco/ito/log"
	"github.com/spf13/cobra"
)

var (
	version = "0.3.0"

	recorder    *execlog.Recorder
	invokedID   string
	invokedArgs []string
	invokedAt   time.Time

	rootCmd = &cobra.Command{
		Use:   "ito",
		Short: "ito - track project changes and tasks with a verifiable audit trail.",
		PersistentPreRun: func(c *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			if err := sentrypkg.Init(version, cfg.IsTelemetryEnabled()); err != nil {
				// Non-fatal: sentry failure should not prevent startup
				_ = err
			}
			log.Initialize(cfg.IsTelemetryEnabled())
			recordCommandStart(c, args, cfg)
		},
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Clear the per-checkout audit session id",
		RunE: func(c *cobra.Command, args []string) error {
			_, itoDir, err := cmd.ResolveProject()
			if err != nil {
				return err
			}
			if err := os.Remove(audit.SessionPath(itoDir)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove session file: %w", err)
			}
			fmt.Println("Session has been reset; the next command starts a new one")
			return nil
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print debug information like config paths",
		RunE: func(c *cobra.Command, args []string) error {
			cfg := config.LoadConfig()

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to get config directory: %w", err)
			}
			configJson, _ := json.MarshalIndent(cfg, "", "  ")

			fmt.Printf("Config: %s\n%s\n", filepath.Join(configDir, config.ConfigFileName), configJson)
			fmt.Printf("Execution logs: %s\n", execlog.LogRoot(configDir))

			if root, itoDir, err := cmd.ResolveProject(); err == nil {
				fmt.Printf("Project: %s\n", root)
				fmt.Printf("State dir: %s\n", itoDir)
				fmt.Printf("Audit log: %s\n", audit.LogPath(itoDir))
				session := "(none)"
				if raw, err := os.ReadFile(audit.SessionPath(itoDir)); err == nil {
					session = strings.TrimSpace(string(raw))
				}
				fmt.Printf("Session: %s\n", session)
			}

			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ito",
		Run: func(c *cobra.Command, args []string) {
			fmt.Printf("ito version %s\n", version)
			fmt.Printf("https://github.com/kastheco/ito/releases/tag/v%s\n", version)
		},
	}
)

// recordCommandStart begins an execution log entry for the invoked
// command. The matching end record is written in main after Execute
// returns, since cobra skips post-run hooks on error.
func recordCommandStart(c *cobra.Command, args []string, cfg *config.Config) {
	if !cfg.IsTelemetryEnabled() {
		return
	}
	configDir, err := config.GetConfigDir()
	if err != nil {
		return
	}
	projectPath, err := os.Getwd()
	if err != nil {
		return
	}
	if root, err := gitutil.ProjectRoot(projectPath); err == nil {
		projectPath = root
	}
	recorder = execlog.NewRecorder(configDir, projectPath, version)
	invokedID = execlog.CommandID(c.CommandPath())
	invokedArgs = args
	invokedAt = time.Now()
	recorder.CommandStart(invokedID, invokedArgs)
}

func init() {
	setupCmd := &cobra.Command{
		Use:     "setup [project-dir]",
		Aliases: []string{"init"},
		Short:   "Scaffold the project state directory and audit log",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var root string
			if len(args) == 1 {
				var err error
				root, err = filepath.Abs(args[0])
				if err != nil {
					return err
				}
			} else {
				cwd, err := filepath.Abs(".")
				if err != nil {
					return fmt.Errorf("failed to get current directory: %w", err)
				}
				root = cwd
				if top, err := gitutil.ProjectRoot(cwd); err == nil {
					root = top
				}
			}

			cfg := config.LoadConfig()
			results, err := initcmd.Run(root, config.ItoDirName(root, cfg))
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Created {
					fmt.Printf("✓ %s\n", r.Path)
				} else {
					fmt.Printf("⊘ %s (exists)\n", r.Path)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(cmd.NewAuditCmd())
	rootCmd.AddCommand(cmd.NewTasksCmd())
	rootCmd.AddCommand(cmd.NewChangesCmd())
	rootCmd.AddCommand(cmd.NewStatsCmd())
}

func main() {
	os.Exit(run())
}

// run executes the CLI and returns the process exit code. The deferred
// cleanup has to happen before os.Exit, which skips defers.
func run() int {
	defer sentrypkg.Flush()
	defer sentrypkg.RecoverPanic()
	defer log.Close()

	err := rootCmd.Execute()

	if invokedID != "" {
		class := execlog.ExitOK
		if err != nil {
			class = execlog.ExitError
		}
		recorder.CommandEnd(invokedID, invokedArgs, time.Since(invokedAt), class)
	}

	if err != nil {
		if errors.Is(err, cmd.ErrUnhealthy) {
			return 1
		}
		fmt.Println(err)
		return 1
	}
	return 0
}
