// Package eventlog records the user-visible actions performed on a
// repository (commits, hides, unhides, history rewrites, reference
// moves) and replays them to decide which commits the user still
// considers visible.
//
// The log is an append-only JSON-lines file kept inside the
// repository's brushwood state directory. It deliberately lives outside
// the object database: git's garbage collection must never be able to
// delete the record of what it is allowed to collect.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// logFile is the name of the event log inside the state directory.
const logFile = "events.jsonl"

// Kind classifies an event.
type Kind string

const (
	// KindCommit records that a commit was created.
	KindCommit Kind = "commit"
	// KindHide records that the user explicitly hid a commit.
	KindHide Kind = "hide"
	// KindUnhide records that the user brought a hidden commit back.
	KindUnhide Kind = "unhide"
	// KindRewrite records that a commit was rewritten into another,
	// hiding the old one and making the new one visible.
	KindRewrite Kind = "rewrite"
	// KindRefMove records that a reference was repointed at a commit.
	KindRefMove Kind = "ref-move"
)

// Event is a single entry of the log. Which hash fields are set depends
// on the kind: Commit for commit/hide/unhide/ref-move, OldCommit and
// NewCommit for rewrite.
type Event struct {
	When      time.Time
	Kind      Kind
	Commit    plumbing.Hash
	OldCommit plumbing.Hash
	NewCommit plumbing.Hash
	Ref       plumbing.ReferenceName
}

// eventJSON is the wire form of Event. Hashes are hex strings so the
// log stays greppable.
type eventJSON struct {
	When      string `json:"when"`
	Kind      string `json:"kind"`
	Commit    string `json:"commit,omitempty"`
	OldCommit string `json:"old_commit,omitempty"`
	NewCommit string `json:"new_commit,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

func hashString(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}

	return h.String()
}

func parseHash(s string) (plumbing.Hash, error) {
	if s == "" {
		return plumbing.ZeroHash, nil
	}

	if !plumbing.IsHash(s) {
		return plumbing.ZeroHash, fmt.Errorf("malformed commit id %q", s)
	}

	return plumbing.NewHash(s), nil
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		When:      e.When.UTC().Format(time.RFC3339Nano),
		Kind:      string(e.Kind),
		Commit:    hashString(e.Commit),
		OldCommit: hashString(e.OldCommit),
		NewCommit: hashString(e.NewCommit),
		Ref:       string(e.Ref),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	when, err := time.Parse(time.RFC3339Nano, w.When)
	if err != nil {
		return fmt.Errorf("malformed event timestamp %q: %w", w.When, err)
	}

	commit, err := parseHash(w.Commit)
	if err != nil {
		return err
	}

	oldCommit, err := parseHash(w.OldCommit)
	if err != nil {
		return err
	}

	newCommit, err := parseHash(w.NewCommit)
	if err != nil {
		return err
	}

	*e = Event{
		When:      when,
		Kind:      Kind(w.Kind),
		Commit:    commit,
		OldCommit: oldCommit,
		NewCommit: newCommit,
		Ref:       plumbing.ReferenceName(w.Ref),
	}

	return nil
}

// Store reads and appends the event log on a filesystem rooted at the
// brushwood state directory.
type Store struct {
	fs billy.Filesystem
}

// NewStore returns a Store over fs. The log file is created lazily on
// the first append.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// Append writes the given events to the end of the log, one JSON object
// per line.
func (s *Store) Append(events ...Event) error {
	f, err := s.fs.OpenFile(logFile, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seeking event log: %w", err)
	}

	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}

		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("writing event log: %w", err)
		}
	}

	return nil
}

// Events returns every recorded event in log order. A missing log file
// yields an empty slice: a repository without history of user actions
// simply has nothing to replay.
func (s *Store) Events() ([]Event, error) {
	f, err := s.fs.Open(logFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("event log entry %d: %w", len(events)+1, err)
		}

		events = append(events, e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}

	return events, nil
}
