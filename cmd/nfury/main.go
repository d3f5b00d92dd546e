// nfury is an HTTP load generator. It runs one-shot load tests from the
// command line and, in server mode, exposes a REST API over a persistent
// catalog of projects, endpoints, and recorded runs.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nfury",
		Short:         "HTTP load generator with a persistent test catalog",
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(newRunCmd(), newServerCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
