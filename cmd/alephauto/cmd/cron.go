package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/integritystudio/alephauto/internal/bootstrap"
)

func newCronCmd() *cobra.Command {
	var pipeline string

	c := &cobra.Command{
		Use:   "cron",
		Short: "Manually trigger one pipeline's job outside its schedule",
		Long: `cron enqueues a single job for the named pipeline and waits briefly
for the scheduler to pick it up, without starting the HTTP API. It is
meant for confirming a pipeline's registration and cron wiring, not for
running the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipeline == "" {
				return exitf(1, "alephauto: --pipeline is required")
			}
			app, err := bootstrap.New(cmd.Context(), cfgFile)
			if err != nil {
				return exitf(1, "alephauto: startup failed: %v", err)
			}
			defer app.Close()

			jobID, err := app.TriggerOnce(cmd.Context(), pipeline)
			if err != nil {
				return exitf(1, "alephauto: trigger failed: %v", err)
			}
			fmt.Printf("alephauto: enqueued job %s for pipeline %s\n", jobID, pipeline)
			return nil
		},
	}

	c.Flags().StringVar(&pipeline, "pipeline", "", "pipeline id to trigger")
	return c
}
