package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/integritystudio/alephauto/internal/bootstrap"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run every registered health check once and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(cmd.Context(), cfgFile)
			if err != nil {
				return exitf(2, "alephauto: startup failed: %v", err)
			}
			defer app.Close()

			if !app.Healthy(cmd.Context()) {
				return exitf(2, "alephauto: unhealthy")
			}
			fmt.Println("alephauto: healthy")
			return nil
		},
	}
}
