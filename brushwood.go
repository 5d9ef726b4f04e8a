// Package brushwood implements a branchless workflow layer on top of a
// Git repository.
//
// Git treats a commit as garbage once no reference points at it or at
// one of its descendants. The branchless workflow often keeps such
// commits around until the user explicitly hides them, so brushwood
// maintains its own keep-alive references under refs/brushwood/ and
// reclaims them with its own garbage collection pass once the commits
// leave the visible commit graph.
package brushwood

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"

	"github.com/brushwood-vcs/brushwood/eventlog"
)

// stateDir is the directory inside .git that holds brushwood's private
// state, most notably the event log.
const stateDir = "brushwood"

var (
	// ErrNoMainBranch is returned when neither the configured main
	// branch nor any of the default candidates resolves to a branch.
	ErrNoMainBranch = errors.New("unable to find a main branch, set brushwood.mainBranch in the git config")

	// ErrUnsupportedStorage is returned by PlainOpen when the
	// repository storage is not filesystem backed.
	ErrUnsupportedStorage = errors.New("repository storage has no filesystem")
)

// Repo wraps a git repository together with the filesystem of its .git
// directory, where brushwood keeps its event log and hooks.
type Repo struct {
	repo   *git.Repository
	store  storage.Storer
	dotgit billy.Filesystem
}

// New returns a Repo over an already opened repository. The dotgit
// filesystem is used for brushwood's private state; tests pass an
// in-memory filesystem here.
func New(r *git.Repository, dotgit billy.Filesystem) *Repo {
	return &Repo{repo: r, store: r.Storer, dotgit: dotgit}
}

// PlainOpen opens the repository containing path, searching upwards for
// the .git directory the same way git does.
func PlainOpen(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}

	fss, ok := r.Storer.(interface{ Filesystem() billy.Filesystem })
	if !ok {
		return nil, ErrUnsupportedStorage
	}

	return New(r, fss.Filesystem()), nil
}

// Repository returns the underlying git repository.
func (r *Repo) Repository() *git.Repository {
	return r.repo
}

// EventLog returns the event log store rooted in the repository's
// brushwood state directory.
func (r *Repo) EventLog() (*eventlog.Store, error) {
	fs, err := r.dotgit.Chroot(stateDir)
	if err != nil {
		return nil, fmt.Errorf("opening state directory: %w", err)
	}

	return eventlog.NewStore(fs), nil
}

// HeadOid returns the commit HEAD resolves to, or plumbing.ZeroHash on
// an unborn branch.
func (r *Repo) HeadOid() (plumbing.Hash, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}

	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving HEAD: %w", err)
	}

	return head.Hash(), nil
}

// MainBranchName returns the name of the repository's main branch. The
// brushwood.mainBranch config key takes precedence, then the first of
// master and main that exists.
func (r *Repo) MainBranchName() (string, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return "", fmt.Errorf("reading git config: %w", err)
	}

	if name := cfg.Raw.Section(stateDir).Option("mainBranch"); name != "" {
		return name, nil
	}

	for _, name := range []string{"master", "main"} {
		if _, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true); err == nil {
			return name, nil
		}
	}

	return "", ErrNoMainBranch
}

// MainBranchOid returns the commit the main branch points at, or
// plumbing.ZeroHash if the branch is configured but not yet born.
func (r *Repo) MainBranchOid() (plumbing.Hash, error) {
	name, err := r.MainBranchName()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}

	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving branch %s: %w", name, err)
	}

	return ref.Hash(), nil
}

// BranchOids returns, for every local branch tip, the names of the
// branches pointing at it.
func (r *Repo) BranchOids() (map[plumbing.Hash][]string, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	oids := make(map[plumbing.Hash][]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		oids[ref.Hash()] = append(oids[ref.Hash()], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}

	return oids, nil
}

// postCommitHook is the hook script installed by InstallPostCommitHook.
// It forwards every new commit to brushwood so the commit stays
// reachable across history rewrites.
const postCommitHook = "#!/bin/sh\nbrushwood hook post-commit\n"

const hookFileFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC

// InstallPostCommitHook writes the post-commit hook into the
// repository's hooks directory, overwriting any previous brushwood
// hook.
func (r *Repo) InstallPostCommitHook() error {
	f, err := r.dotgit.OpenFile("hooks/post-commit", hookFileFlags, 0o755)
	if err != nil {
		return fmt.Errorf("creating post-commit hook: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(postCommitHook)); err != nil {
		return fmt.Errorf("writing post-commit hook: %w", err)
	}

	return nil
}
