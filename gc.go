package brushwood

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"golang.org/x/exp/maps"

	"github.com/brushwood-vcs/brushwood/eventlog"
	"github.com/brushwood-vcs/brushwood/graph"
	"github.com/brushwood-vcs/brushwood/internal/reference"
)

// GCRefPrefix is the reference namespace owned by brushwood. Every
// reference under it is named after the commit it points at, is created
// only by MarkCommitReachable and deleted only by GC.
const GCRefPrefix = "refs/brushwood/"

// GCRefName returns the keep-alive reference name for oid.
func GCRefName(oid plumbing.Hash) plumbing.ReferenceName {
	return plumbing.ReferenceName(GCRefPrefix + oid.String())
}

// IsGCRef reports whether name belongs to brushwood's keep-alive
// namespace. References outside it are never written or deleted by this
// package.
func IsGCRef(name plumbing.ReferenceName) bool {
	return strings.HasPrefix(string(name), GCRefPrefix)
}

// VisibleSet reports whether a commit is part of the currently visible
// commit graph. graph.CommitGraph implements it; tests may substitute
// synthetic sets.
type VisibleSet interface {
	Contains(oid plumbing.Hash) bool
}

// MarkCommitReachable keeps the given commit reachable by creating a
// reference to it under GCRefPrefix. The commit then survives git's own
// garbage collection until brushwood's GC observes that it has left the
// visible graph.
//
// The operation is idempotent: the reference name encodes the commit,
// so re-pinning overwrites the reference with an identical value.
func MarkCommitReachable(s storage.Storer, oid plumbing.Hash) error {
	name := GCRefName(oid)
	if err := name.Validate(); err != nil {
		return fmt.Errorf("invalid keep-alive reference name %q: %w", name, err)
	}

	if err := s.SetReference(plumbing.NewHashReference(name, oid)); err != nil {
		return fmt.Errorf("creating reference %s: %w", name, err)
	}

	return nil
}

// MarkCommitReachable pins oid in the repository's store.
func (r *Repo) MarkCommitReachable(oid plumbing.Hash) error {
	return MarkCommitReachable(r.store, oid)
}

// GC deletes every keep-alive reference whose commit is no longer part
// of the visible commit graph. A single progress line is written to out
// before any reference is touched.
//
// If the visible graph cannot be computed, no reference is deleted:
// over-retention is always preferred over collecting a live commit.
func (r *Repo) GC(out io.Writer) error {
	log, err := r.EventLog()
	if err != nil {
		return err
	}

	replayer, err := eventlog.ReplayStore(log)
	if err != nil {
		return fmt.Errorf("replaying event log: %w", err)
	}

	head, err := r.HeadOid()
	if err != nil {
		return err
	}

	main, err := r.MainBranchOid()
	if err != nil {
		return err
	}

	branches, err := r.BranchOids()
	if err != nil {
		return err
	}

	g, err := graph.Make(r.store, replayer, head, main, maps.Keys(branches), true)
	if err != nil {
		return fmt.Errorf("computing visible commits: %w", err)
	}

	fmt.Fprintln(out, "brushwood: collecting garbage")

	return sweep(r.store, g)
}

// sweep removes every dangling keep-alive reference. Deletions are
// independent of each other; the pass is idempotent and safe to re-run
// after a partial failure.
func sweep(s storage.Storer, visible VisibleSet) error {
	dangling, err := findDanglingReferences(s, visible)
	if err != nil {
		return err
	}

	for _, ref := range dangling {
		if err := s.RemoveReference(ref.Name()); err != nil {
			return fmt.Errorf("deleting reference %s: %w", ref.Name(), err)
		}
	}

	return nil
}

// findDanglingReferences returns the keep-alive references whose
// commits are absent from the visible set.
//
// References that fail to resolve, or that do not peel to a commit
// (e.g. a tag pointing at a tree), are skipped: one broken entry must
// not block collection of the rest, and the visible graph only contains
// commits to begin with. Non keep-alive references are only ever read.
func findDanglingReferences(s storage.Storer, visible VisibleSet) ([]*plumbing.Reference, error) {
	refs, err := reference.References(s)
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}

	reference.Sort(refs)

	var dangling []*plumbing.Reference
	for _, ref := range refs {
		resolved, err := storer.ResolveReference(s, ref.Name())
		if err != nil {
			continue
		}

		commit, err := peelToCommit(s, resolved.Hash())
		if err != nil {
			continue
		}

		if IsGCRef(ref.Name()) && !visible.Contains(commit.Hash) {
			dangling = append(dangling, ref)
		}
	}

	return dangling, nil
}

// peelToCommit resolves a hash to the commit it identifies, following
// annotated tags one level, mirroring how git peels references.
func peelToCommit(s storer.EncodedObjectStorer, oid plumbing.Hash) (*object.Commit, error) {
	eo, err := s.EncodedObject(plumbing.AnyObject, oid)
	if err != nil {
		return nil, err
	}

	switch eo.Type() {
	case plumbing.CommitObject:
		return object.GetCommit(s, oid)
	case plumbing.TagObject:
		tag, err := object.GetTag(s, oid)
		if err != nil {
			return nil, err
		}
		return tag.Commit()
	default:
		return nil, object.ErrUnsupportedObject
	}
}
