package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/integritystudio/alephauto/internal/bootstrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and cron runner until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(cmd.Context(), cfgFile)
			if err != nil {
				return exitf(1, "alephauto: startup failed: %v", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				return exitf(1, "alephauto: %v", err)
			}
			fmt.Println("alephauto: shut down cleanly")
			return nil
		},
	}
}
