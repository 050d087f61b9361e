package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/objectplan/objectplan/cmd/apply"
	"github.com/objectplan/objectplan/cmd/diff"
	"github.com/objectplan/objectplan/internal/logger"
	"github.com/objectplan/objectplan/internal/version"
	"github.com/spf13/cobra"
)

var Debug bool

var RootCmd = &cobra.Command{
	Use:   "objectplan",
	Short: "Generic database-object migration planner",
	Long: fmt.Sprintf(`objectplan computes an ordered build plan between two object-tree
snapshots, independent of which kind of database or object format they
describe.

Version: %s@%s %s %s

Commands:
  diff    Compute a build plan between two object trees
  apply   Execute a build plan against a live database

Use "objectplan [command] --help" for more information about a command.`,
		version.App(), version.GetGitCommit(), version.Platform(), version.GetBuildDate()),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable debug logging")
	RootCmd.AddCommand(diff.DiffCmd)
	RootCmd.AddCommand(apply.ApplyCmd)
}

func setupLogger() {
	level := slog.LevelInfo
	if Debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger.SetGlobal(slog.New(handler), Debug)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
