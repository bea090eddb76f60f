// cmd/loadtest/main.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errSLABreached makes the process exit non-zero after a completed run.
var errSLABreached = errors.New("SLA breached")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errSLABreached) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "loadtest",
		Short: "Simulate marketplace visitors",
		Long: `Simulate people browsing the marketplace and submitting add-ons.

Each simulated user gets a throwaway identity account, browses listings and
uploads unique copies of fixture packages, then removes its account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}
