package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brushwood-vcs/brushwood"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "brushwood:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "brushwood",
		Short:         "Branchless workflow layer for git",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		initCmd(),
		gcCmd(),
		hideCmd(),
		unhideCmd(),
		hookCmd(),
	)

	return cmd
}

// openRepo opens the repository containing the current directory.
func openRepo() (*brushwood.Repo, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	return brushwood.PlainOpen(wd)
}
