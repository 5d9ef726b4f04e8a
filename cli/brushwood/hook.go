package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brushwood-vcs/brushwood/eventlog"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Install the brushwood hooks into the current repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}

			if err := repo.InstallPostCommitHook(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "brushwood: installed post-commit hook")

			return nil
		},
	}
}

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Callbacks invoked by the installed git hooks",
		Hidden: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "post-commit",
		Short: "Record the new HEAD commit and keep it reachable",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}

			head, err := repo.HeadOid()
			if err != nil {
				return err
			}

			if head.IsZero() {
				return nil
			}

			log, err := repo.EventLog()
			if err != nil {
				return err
			}

			err = log.Append(eventlog.Event{
				When:   time.Now(),
				Kind:   eventlog.KindCommit,
				Commit: head,
			})
			if err != nil {
				return err
			}

			return repo.MarkCommitReachable(head)
		},
	})

	return cmd
}
