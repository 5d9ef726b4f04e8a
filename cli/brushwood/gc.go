package main

import (
	"github.com/spf13/cobra"
)

func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Delete keep-alive references for commits that are no longer visible",
		Long: `Delete the refs/brushwood/ references whose commits have left the
visible commit graph, so that a following git gc can reclaim them.
References outside refs/brushwood/ are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}

			return repo.GC(cmd.OutOrStdout())
		},
	}
}
