package brushwood

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/suite"

	"github.com/brushwood-vcs/brushwood/eventlog"
)

func TestGCSuite(t *testing.T) {
	suite.Run(t, new(GCSuite))
}

type GCSuite struct {
	repoSuite
}

// hashSet is a synthetic VisibleSet for sweep tests.
type hashSet map[plumbing.Hash]struct{}

func (s hashSet) Contains(oid plumbing.Hash) bool {
	_, ok := s[oid]
	return ok
}

func (s *GCSuite) TestGCRefName() {
	oid := plumbing.NewHash("b029517f6300c2da0f4b651b8642506cd6aaf45d")

	name := GCRefName(oid)
	s.Equal(plumbing.ReferenceName("refs/brushwood/b029517f6300c2da0f4b651b8642506cd6aaf45d"), name)
	s.NoError(name.Validate())
}

func (s *GCSuite) TestIsGCRef() {
	oid := plumbing.NewHash("b029517f6300c2da0f4b651b8642506cd6aaf45d")

	s.True(IsGCRef(GCRefName(oid)))
	s.False(IsGCRef("refs/heads/master"))
	s.False(IsGCRef("refs/tags/v1.0.0"))
	s.False(IsGCRef("refs/brushwoodish/b029517f6300c2da0f4b651b8642506cd6aaf45d"))
}

func (s *GCSuite) TestMarkCommitReachable() {
	c1 := s.commit("one")

	before := s.refNames()
	s.Require().NoError(s.repo.MarkCommitReachable(c1))

	ref, err := s.git.Reference(GCRefName(c1), true)
	s.Require().NoError(err)
	s.Equal(c1, ref.Hash())

	// Exactly one reference was added, and only inside the
	// keep-alive namespace.
	after := s.refNames()
	s.Len(after, len(before)+1)
	for name := range before {
		s.True(after[name])
	}
}

func (s *GCSuite) TestMarkCommitReachableIdempotent() {
	c1 := s.commit("one")

	s.Require().NoError(s.repo.MarkCommitReachable(c1))
	first := s.refNames()

	s.Require().NoError(s.repo.MarkCommitReachable(c1))
	s.Equal(first, s.refNames())

	ref, err := s.git.Reference(GCRefName(c1), true)
	s.Require().NoError(err)
	s.Equal(c1, ref.Hash())
}

func (s *GCSuite) TestSweepDeletesDangling() {
	a := s.commit("a")
	b := s.commit("b")
	c := s.commit("c")

	for _, oid := range []plumbing.Hash{a, b, c} {
		s.Require().NoError(s.repo.MarkCommitReachable(oid))
	}

	err := sweep(s.git.Storer, hashSet{a: {}, c: {}})
	s.Require().NoError(err)

	names := s.refNames()
	s.True(names[GCRefName(a)])
	s.False(names[GCRefName(b)])
	s.True(names[GCRefName(c)])
}

func (s *GCSuite) TestSweepLeavesOtherReferences() {
	b := s.commit("b")
	s.setRef("refs/heads/feature", b)
	s.Require().NoError(s.repo.MarkCommitReachable(b))

	// b is visible to nobody, but only the keep-alive reference may
	// be collected for it.
	err := sweep(s.git.Storer, hashSet{})
	s.Require().NoError(err)

	names := s.refNames()
	s.True(names["refs/heads/feature"])
	s.True(names["refs/heads/master"])
	s.False(names[GCRefName(b)])
}

func (s *GCSuite) TestSweepSkipsUnresolvable() {
	s.commit("one")

	// A symbolic reference whose target does not exist.
	err := s.git.Storer.SetReference(plumbing.NewSymbolicReference(
		"refs/remotes/origin/HEAD", "refs/remotes/origin/missing"))
	s.Require().NoError(err)

	// A keep-alive reference whose commit object was already purged.
	purged := plumbing.NewHash("0123456789abcdef0123456789abcdef01234567")
	s.Require().NoError(s.repo.MarkCommitReachable(purged))

	err = sweep(s.git.Storer, hashSet{})
	s.Require().NoError(err)

	names := s.refNames()
	s.True(names["refs/remotes/origin/HEAD"])
	s.True(names[GCRefName(purged)])
}

func (s *GCSuite) TestSweepSkipsNonCommitTags() {
	c1 := s.commit("one")

	commit, err := object.GetCommit(s.git.Storer, c1)
	s.Require().NoError(err)

	// An annotated tag pointing at a tree, referenced both from the
	// tag namespace and, artificially, from the keep-alive one.
	tag := &object.Tag{
		Name:       "tree-tag",
		Tagger:     *testSignature(),
		Message:    "points at a tree",
		TargetType: plumbing.TreeObject,
		Target:     commit.TreeHash,
	}

	obj := s.git.Storer.NewEncodedObject()
	s.Require().NoError(tag.Encode(obj))
	tagHash, err := s.git.Storer.SetEncodedObject(obj)
	s.Require().NoError(err)

	s.setRef("refs/tags/tree-tag", tagHash)
	s.setRef(plumbing.ReferenceName(GCRefPrefix+tagHash.String()), tagHash)

	err = sweep(s.git.Storer, hashSet{})
	s.Require().NoError(err)

	names := s.refNames()
	s.True(names["refs/tags/tree-tag"])
	s.True(names[plumbing.ReferenceName(GCRefPrefix+tagHash.String())])
}

func (s *GCSuite) TestSweepFollowsAnnotatedTags() {
	c1 := s.commit("one")

	tag := &object.Tag{
		Name:       "v1",
		Tagger:     *testSignature(),
		Message:    "release",
		TargetType: plumbing.CommitObject,
		Target:     c1,
	}

	obj := s.git.Storer.NewEncodedObject()
	s.Require().NoError(tag.Encode(obj))
	tagHash, err := s.git.Storer.SetEncodedObject(obj)
	s.Require().NoError(err)

	s.setRef("refs/tags/v1", tagHash)
	s.setRef(plumbing.ReferenceName(GCRefPrefix+tagHash.String()), tagHash)

	// The keep-alive reference peels through the tag to c1, which is
	// not visible, so it goes; the tag itself stays.
	err = sweep(s.git.Storer, hashSet{})
	s.Require().NoError(err)

	names := s.refNames()
	s.True(names["refs/tags/v1"])
	s.False(names[plumbing.ReferenceName(GCRefPrefix+tagHash.String())])
}

func (s *GCSuite) TestGCFailClosedOnVisibilityError() {
	c1 := s.commit("one")
	s.Require().NoError(s.repo.MarkCommitReachable(c1))

	err := util.WriteFile(s.state, "brushwood/events.jsonl", []byte("not json\n"), 0o644)
	s.Require().NoError(err)

	var out bytes.Buffer
	err = s.repo.GC(&out)
	s.Error(err)

	// Fail-closed: nothing was deleted, and the sweep never even
	// announced itself.
	s.True(s.refNames()[GCRefName(c1)])
	s.Zero(out.Len())
}

func (s *GCSuite) TestGCCollectsHiddenCommit() {
	c1 := s.commit("one")
	c2 := s.commit("two")

	// Rewind master so that c2 survives only through its keep-alive
	// reference, the way an in-progress rewrite leaves commits behind.
	s.setRef("refs/heads/master", c1)
	s.Require().NoError(s.repo.MarkCommitReachable(c2))

	log, err := s.repo.EventLog()
	s.Require().NoError(err)
	s.Require().NoError(log.Append(eventlog.Event{
		When:   time.Now(),
		Kind:   eventlog.KindCommit,
		Commit: c2,
	}))

	// Still visible: the reference must survive.
	var out bytes.Buffer
	s.Require().NoError(s.repo.GC(&out))
	s.Equal("brushwood: collecting garbage\n", out.String())
	s.True(s.refNames()[GCRefName(c2)])

	// Hidden: the reference is collected.
	s.Require().NoError(log.Append(eventlog.Event{
		When:   time.Now(),
		Kind:   eventlog.KindHide,
		Commit: c2,
	}))
	s.Require().NoError(s.repo.GC(&out))
	s.False(s.refNames()[GCRefName(c2)])

	// Unhidden and re-pinned: kept again.
	s.Require().NoError(log.Append(eventlog.Event{
		When:   time.Now(),
		Kind:   eventlog.KindUnhide,
		Commit: c2,
	}))
	s.Require().NoError(s.repo.MarkCommitReachable(c2))
	s.Require().NoError(s.repo.GC(&out))
	s.True(s.refNames()[GCRefName(c2)])
}

func (s *GCSuite) TestGCIsIdempotent() {
	c1 := s.commit("one")
	c2 := s.commit("two")
	s.setRef("refs/heads/master", c1)
	s.Require().NoError(s.repo.MarkCommitReachable(c2))

	var out bytes.Buffer
	s.Require().NoError(s.repo.GC(&out))
	after := s.refNames()

	s.Require().NoError(s.repo.GC(&out))
	s.Equal(after, s.refNames())
}
