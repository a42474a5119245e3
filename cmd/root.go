// Package cmd provides the command-line interface of cachesim.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var logger = logrus.New()

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var (
		logLevel string
		noColor  bool
	)

	rootCmd := &cobra.Command{
		Use:   "cachesim",
		Short: "Simulate a single-level write-back cache against a memory trace.",
		Long: `cachesim replays a trace of loads and stores through a ` +
			`set-associative cache with LRU replacement and reports hits, ` +
			`misses, dirty write-backs, and cycles per instruction.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}

			logger.SetLevel(level)
			logger.SetOutput(cmd.ErrOrStderr())

			if noColor {
				color.NoColor = true
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored headings")

	rootCmd.AddCommand(newRunCmd(), newShellCmd())

	return rootCmd
}

// Execute runs the command line and exits with a non-zero status on error.
// Exiting goes through atexit so that pending recordings are flushed.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	logger.SetOutput(os.Stderr)
}
