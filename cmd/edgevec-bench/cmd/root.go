// Package cmd provides the edgevec-bench CLI commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/edgevec/edgevec/internal/logging"
	"github.com/edgevec/edgevec/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the edgevec-bench CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edgevec-bench",
		Short:   "Runs EdgeVec's literal scenarios and invariant checks",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !debugMode {
				return nil
			}
			logger, cleanup, err := logging.Setup(logging.DebugConfig())
			if err != nil {
				return err
			}
			loggingCleanup = cleanup
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if loggingCleanup != nil {
				loggingCleanup()
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "write structured logs to ~/.edgevec/logs/")
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// isColorTerminal reports whether stdout is an interactive terminal
// that should receive ANSI-colored PASS/FAIL markers, the same
// isatty-gated decision the teacher's CLI makes for its own output.
func isColorTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(version.String())
			return nil
		},
	}
}
