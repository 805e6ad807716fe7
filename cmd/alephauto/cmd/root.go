// Package cmd implements the command-line interface for AlephAuto.
// It provides the root command and subcommands for running and
// operating the job control plane.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "alephauto",
	Short: "AlephAuto job orchestration and monitoring control plane",
	Long:  `AlephAuto schedules, runs and reports on background pipeline jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default: built-in defaults plus environment variables)",
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("alephauto version 1.0.0")
		},
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newCronCmd())
	rootCmd.AddCommand(newHealthCmd())
}

// exitError carries the process exit code a failed subcommand wants,
// so deferred cleanup (store/cache Close) still runs before main exits.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// ExitCode reports the process exit code err wants, defaulting to 1 for
// any other non-nil error and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
