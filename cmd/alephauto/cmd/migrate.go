package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/integritystudio/alephauto/internal/bootstrap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Job Store schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(cmd.Context(), cfgFile)
			if err != nil {
				return exitf(1, "alephauto: startup failed: %v", err)
			}
			defer app.Close()

			version, err := app.Migrate(cmd.Context())
			if err != nil {
				return exitf(1, "alephauto: migration failed: %v", err)
			}
			fmt.Printf("alephauto: schema at version %d\n", version)
			return nil
		},
	}
}
