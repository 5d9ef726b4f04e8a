package main

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/brushwood-vcs/brushwood"
	"github.com/brushwood-vcs/brushwood/eventlog"
)

func hideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hide <revision>...",
		Short: "Hide commits from the visible graph",
		Long: `Record the given commits as hidden. Hidden commits disappear from the
visible graph and their keep-alive references become eligible for the
next brushwood gc.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}

			oids, err := resolveRevisions(repo, args)
			if err != nil {
				return err
			}

			events := make([]eventlog.Event, 0, len(oids))
			for _, oid := range oids {
				events = append(events, eventlog.Event{
					When:   time.Now(),
					Kind:   eventlog.KindHide,
					Commit: oid,
				})
			}

			log, err := repo.EventLog()
			if err != nil {
				return err
			}

			if err := log.Append(events...); err != nil {
				return err
			}

			for _, oid := range oids {
				fmt.Fprintf(cmd.OutOrStdout(), "hid commit %s\n", oid)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "to undo, run: brushwood unhide <commit>")

			return nil
		},
	}
}

func unhideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unhide <revision>...",
		Short: "Bring hidden commits back into the visible graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}

			oids, err := resolveRevisions(repo, args)
			if err != nil {
				return err
			}

			events := make([]eventlog.Event, 0, len(oids))
			for _, oid := range oids {
				events = append(events, eventlog.Event{
					When:   time.Now(),
					Kind:   eventlog.KindUnhide,
					Commit: oid,
				})
			}

			log, err := repo.EventLog()
			if err != nil {
				return err
			}

			if err := log.Append(events...); err != nil {
				return err
			}

			// Re-pin immediately: the commit may have lost its
			// keep-alive reference to a gc run while hidden.
			for _, oid := range oids {
				if err := repo.MarkCommitReachable(oid); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "unhid commit %s\n", oid)
			}

			return nil
		},
	}
}

func resolveRevisions(repo *brushwood.Repo, revs []string) ([]plumbing.Hash, error) {
	oids := make([]plumbing.Hash, 0, len(revs))
	for _, rev := range revs {
		oid, err := repo.Repository().ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return nil, fmt.Errorf("resolving revision %q: %w", rev, err)
		}

		oids = append(oids, *oid)
	}

	return oids, nil
}
