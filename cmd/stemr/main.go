// Command stemr proposes linear noise approximation paths for a
// configured epidemic model and stores them for later analysis.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stemr",
		Short:         "LNA toolkit for stochastic epidemic models",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newSimulateCmd())
	return root
}
