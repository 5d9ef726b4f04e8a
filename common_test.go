package brushwood

import (
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/suite"
)

// repoSuite provides a fresh in-memory repository per test.
type repoSuite struct {
	suite.Suite

	repo  *Repo
	git   *git.Repository
	wt    billy.Filesystem
	state billy.Filesystem

	seq int
}

func (s *repoSuite) SetupTest() {
	s.wt = memfs.New()
	s.state = memfs.New()
	s.seq = 0

	r, err := git.Init(memory.NewStorage(), s.wt)
	s.Require().NoError(err)

	s.git = r
	s.repo = New(r, s.state)
}

// commit writes a new file and commits it, returning the commit hash.
func (s *repoSuite) commit(msg string) plumbing.Hash {
	w, err := s.git.Worktree()
	s.Require().NoError(err)

	s.seq++
	name := fmt.Sprintf("file-%d.txt", s.seq)
	err = util.WriteFile(s.wt, name, []byte(msg+"\n"), 0o644)
	s.Require().NoError(err)

	_, err = w.Add(name)
	s.Require().NoError(err)

	h, err := w.Commit(msg, &git.CommitOptions{Author: testSignature()})
	s.Require().NoError(err)

	return h
}

// setRef points name directly at oid in the store.
func (s *repoSuite) setRef(name plumbing.ReferenceName, oid plumbing.Hash) {
	err := s.git.Storer.SetReference(plumbing.NewHashReference(name, oid))
	s.Require().NoError(err)
}

// refNames returns the names of all references currently in the store.
func (s *repoSuite) refNames() map[plumbing.ReferenceName]bool {
	iter, err := s.git.Storer.IterReferences()
	s.Require().NoError(err)

	names := make(map[plumbing.ReferenceName]bool)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names[ref.Name()] = true
		return nil
	})
	s.Require().NoError(err)

	return names
}

func testSignature() *object.Signature {
	return &object.Signature{
		Name:  "brushwood test",
		Email: "test@example.com",
		When:  time.Now(),
	}
}
