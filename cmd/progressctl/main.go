package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "progressctl",
		Short:         "Operator tooling for grade scales and progress regeneration",
		SilenceUsage:  true,
	}
	root.AddCommand(newScaleCmd(), newRegenerateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
