package refs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vcsforge/gitcore/modules/object"
	"github.com/vcsforge/gitcore/modules/plumbing"
)

// reflogDir is the directory reflogs live under, mirroring the loose
// ref tree one level down (logs/refs/heads/main next to refs/heads/main).
const reflogDir = "logs"

// ReflogEntry is one line of a reference's log: the hash transition, who
// made it, and why. Framed per spec §6.5: "<old_D> <new_D> <ident_name>
// <ident_email> <epoch> <tz>\t<reason>\n".
type ReflogEntry struct {
	Old, New  plumbing.Hash
	Committer object.Signature
	Reason    string
}

// Reflog is one reference's full entry history, newest first.
type Reflog struct {
	name    plumbing.ReferenceName
	Entries []*ReflogEntry
}

func (l *Reflog) Empty() bool { return l == nil || len(l.Entries) == 0 }

// Push prepends a new entry, chaining its Old to the previous entry's
// New so the log reads as an unbroken transition history.
func (l *Reflog) Push(newHash plumbing.Hash, committer object.Signature, reason string) {
	e := &ReflogEntry{New: newHash, Committer: committer, Reason: reason}
	if len(l.Entries) > 0 {
		e.Old = l.Entries[0].New
	}
	entries := make([]*ReflogEntry, 0, len(l.Entries)+1)
	entries = append(entries, e)
	entries = append(entries, l.Entries...)
	l.Entries = entries
}

var errUnparsableReflogLine = errors.New("refs: unparsable reflog line")

// parseReflogLine decodes one §6.5 line. The identity fields are encoded
// the same way a commit Signature is ("name <email> epoch tz"), so
// Signature.Decode handles that middle span directly.
func parseReflogLine(line string) (*ReflogEntry, error) {
	oldStr, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, errUnparsableReflogLine
	}
	newStr, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, errUnparsableReflogLine
	}
	signature := rest
	reason := ""
	if i := strings.IndexByte(rest, '\t'); i != -1 {
		signature, reason = rest[:i], rest[i+1:]
	}
	e := &ReflogEntry{Old: plumbing.NewHash(oldStr), New: plumbing.NewHash(newStr), Reason: reason}
	e.Committer.Decode([]byte(signature))
	return e, nil
}

func (e *ReflogEntry) String() string {
	if len(e.Reason) == 0 {
		return fmt.Sprintf("%s %s %s", e.Old, e.New, &e.Committer)
	}
	return fmt.Sprintf("%s %s %s\t%s", e.Old, e.New, &e.Committer, strings.ReplaceAll(e.Reason, "\n", " "))
}

// reflogStore reads and appends reflog files under root/logs, grounded
// on the teacher's reflog.DB (modules/zeta/reflog/reflog.go): same
// newest-first in-memory order (appends are plain O_APPEND writes, not
// lock+rename; see append), ported
// to git's literal §6.5 line shape (the teacher's own serialize/parse
// pair already produces that shape, give or take the hugescm-specific
// directory constants this drops).
type reflogStore struct {
	root string
}

func newReflogStore(root string) *reflogStore { return &reflogStore{root: root} }

func (s *reflogStore) path(name plumbing.ReferenceName) string {
	return filepath.Join(s.root, reflogDir, string(name))
}

func (s *reflogStore) read(name plumbing.ReferenceName) (*Reflog, error) {
	fd, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return &Reflog{name: name}, nil
		}
		return nil, err
	}
	defer fd.Close()

	log := &Reflog{name: name}
	sc := bufio.NewScanner(fd)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	// Lines on disk are oldest-first (each append writes to the tail);
	// Entries is kept newest-first, so read back to front.
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		e, err := parseReflogLine(line)
		if err != nil {
			continue
		}
		log.Entries = append(log.Entries, e)
	}
	return log, nil
}

// append adds one entry to name's reflog, creating the file and its
// parent directories if needed. The write goes straight to the open
// file rather than through storage.Lockfile, since a reflog append is
// additive (no reader ever observes a half-written file mid-append
// under POSIX O_APPEND) unlike a ref's full-replace update.
func (s *reflogStore) append(name plumbing.ReferenceName, e *ReflogEntry) error {
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0777); err != nil {
		return err
	}
	fd, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = fmt.Fprintln(fd, e.String())
	return err
}

func (s *reflogStore) delete(name plumbing.ReferenceName) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// rename moves a reflog file when its reference is renamed. If oldName
// has no log, it does nothing and returns nil.
func (s *reflogStore) rename(oldName, newName plumbing.ReferenceName) error {
	oldPath, newPath := s.path(oldName), s.path(newName)
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0777); err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}
