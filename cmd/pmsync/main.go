// Command pmsync validates bean schemas, runs synchronization scenarios and
// inspects session journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pmsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
