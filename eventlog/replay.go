package eventlog

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/exp/maps"
)

// Status is the visibility of a commit after replaying the log.
type Status int

const (
	// StatusUnknown means the log never mentioned the commit.
	StatusUnknown Status = iota
	// StatusVisible means the user still considers the commit part of
	// their working history.
	StatusVisible
	// StatusHidden means the commit was hidden, either explicitly or by
	// being rewritten into a newer version.
	StatusHidden
)

// Replayer holds the per-commit visibility produced by replaying an
// event log. For each commit the most recent event wins.
type Replayer struct {
	status map[plumbing.Hash]Status
}

// Replay processes events in log order and returns the resulting
// visibility state.
func Replay(events []Event) *Replayer {
	r := &Replayer{status: make(map[plumbing.Hash]Status)}

	for _, e := range events {
		switch e.Kind {
		case KindCommit, KindUnhide:
			r.status[e.Commit] = StatusVisible
		case KindHide:
			r.status[e.Commit] = StatusHidden
		case KindRewrite:
			r.status[e.OldCommit] = StatusHidden
			r.status[e.NewCommit] = StatusVisible
		case KindRefMove:
			// A reference pointed at the commit, so the user saw it.
			// The move does not override an explicit hide.
			if _, ok := r.status[e.Commit]; !ok {
				r.status[e.Commit] = StatusVisible
			}
		}
	}

	delete(r.status, plumbing.ZeroHash)

	return r
}

// ReplayStore reads the whole log from st and replays it.
func ReplayStore(st *Store) (*Replayer, error) {
	events, err := st.Events()
	if err != nil {
		return nil, err
	}

	return Replay(events), nil
}

// Status returns the visibility of oid.
func (r *Replayer) Status(oid plumbing.Hash) Status {
	return r.status[oid]
}

// ActiveOids returns every commit the log has ever mentioned, hidden
// ones included, in a stable order.
func (r *Replayer) ActiveOids() []plumbing.Hash {
	oids := maps.Keys(r.status)
	sort.Slice(oids, func(i, j int) bool {
		return oids[i].String() < oids[j].String()
	})

	return oids
}
