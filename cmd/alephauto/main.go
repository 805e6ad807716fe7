// Command alephauto is the job control plane's entry point: serve, migrate,
// cron and health subcommands over the assembled application (internal/bootstrap).
package main

import (
	"fmt"
	"os"

	"github.com/integritystudio/alephauto/cmd/alephauto/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cmd.ExitCode(err))
}
