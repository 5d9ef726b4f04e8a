// Package graph builds the visible commit graph of a repository: the
// commits the user still works with, whether or not a branch points at
// them.
//
// The graph is seeded from HEAD, the main branch, every local branch
// tip and every commit the event log has ever mentioned. Each seed is
// then connected to the main branch by walking its ancestry up to the
// merge base, so the graph forms the same commit set a smartlog would
// display. Commits the user has hidden are pruned away unless a visible
// descendant still needs them.
package graph

import (
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	"github.com/brushwood-vcs/brushwood/eventlog"
)

// Node is a single commit of the graph.
type Node struct {
	// Commit is the underlying commit object.
	Commit *object.Commit
	// Children are the graph commits that have this commit as a
	// parent.
	Children []plumbing.Hash
	// IsMain marks commits that belong to the main branch.
	IsMain bool
	// IsVisible is false only for commits the event log reports as
	// hidden.
	IsVisible bool
}

// CommitGraph maps every visible commit to its node.
type CommitGraph map[plumbing.Hash]*Node

// Contains reports whether oid is part of the graph.
func (g CommitGraph) Contains(oid plumbing.Hash) bool {
	_, ok := g[oid]
	return ok
}

// Make builds the commit graph for the given repository state.
//
// Seeds whose commit object has already been purged from the store are
// skipped; any other read failure aborts the construction. When
// hideCommits is set, hidden commits without visible descendants are
// removed from the result, which is what makes their keep-alive
// references collectable.
func Make(
	s storage.Storer,
	replayer *eventlog.Replayer,
	head plumbing.Hash,
	main plumbing.Hash,
	branches []plumbing.Hash,
	hideCommits bool,
) (CommitGraph, error) {
	anchors := make(map[plumbing.Hash]bool)
	for _, oid := range append([]plumbing.Hash{head, main}, branches...) {
		if !oid.IsZero() {
			anchors[oid] = true
		}
	}

	seeds := replayer.ActiveOids()
	for oid := range anchors {
		seeds = append(seeds, oid)
	}

	var mainCommit *object.Commit
	if !main.IsZero() {
		var err error
		mainCommit, err = object.GetCommit(s, main)
		if err != nil {
			return nil, err
		}
	}

	g := make(CommitGraph)
	cache := NewMergeBaseCache(defaultMergeBaseCacheSize)

	for _, seed := range seeds {
		commit, err := object.GetCommit(s, seed)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			// Already collected by git itself. Nothing left to show.
			continue
		}

		if err != nil {
			return nil, err
		}

		stop := make(map[plumbing.Hash]bool)
		if mainCommit != nil {
			if seed == main {
				stop[main] = true
			} else {
				bases, err := cache.MergeBase(commit, mainCommit)
				if err != nil {
					return nil, err
				}
				for _, base := range bases {
					stop[base] = true
				}
			}
		}

		if err := walk(s, g, replayer, commit, stop); err != nil {
			return nil, err
		}
	}

	connect(g)

	if hideCommits {
		pruneHidden(g, anchors)
	}

	return g, nil
}

// walk adds commit and its ancestors to the graph, stopping at commits
// already present and at the stop set (the merge bases with the main
// branch, which are included and marked as main).
func walk(
	s storage.Storer,
	g CommitGraph,
	replayer *eventlog.Replayer,
	commit *object.Commit,
	stop map[plumbing.Hash]bool,
) error {
	stack := []*object.Commit{commit}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if g.Contains(cur.Hash) {
			continue
		}

		g[cur.Hash] = &Node{
			Commit:    cur,
			IsMain:    stop[cur.Hash],
			IsVisible: replayer.Status(cur.Hash) != eventlog.StatusHidden,
		}

		if stop[cur.Hash] {
			continue
		}

		for _, p := range cur.ParentHashes {
			parent, err := object.GetCommit(s, p)
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				// Purged or behind a shallow boundary.
				continue
			}

			if err != nil {
				return err
			}

			stack = append(stack, parent)
		}
	}

	return nil
}

// connect fills in the child links between graph nodes.
func connect(g CommitGraph) {
	for oid, node := range g {
		for _, p := range node.Commit.ParentHashes {
			if parent, ok := g[p]; ok {
				parent.Children = append(parent.Children, oid)
			}
		}
	}
}

// pruneHidden removes hidden commits that no surviving node descends
// from. Anchored commits (HEAD, main, branch tips) always stay, even
// when hidden.
func pruneHidden(g CommitGraph, anchors map[plumbing.Hash]bool) {
	for changed := true; changed; {
		changed = false
		for oid, node := range g {
			if node.IsVisible || anchors[oid] {
				continue
			}

			if liveChildren(g, node) == 0 {
				delete(g, oid)
				changed = true
			}
		}
	}
}

func liveChildren(g CommitGraph, node *Node) int {
	var n int
	for _, child := range node.Children {
		if g.Contains(child) {
			n++
		}
	}

	return n
}
