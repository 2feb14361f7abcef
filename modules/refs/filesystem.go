package refs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vcsforge/gitcore/modules/object"
	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/storage"
)

const (
	packedRefsPath      = "packed-refs"
	refsPath            = "refs"
	tmpPackedRefsPrefix = "._packed-refs"
)

// ErrReferenceHasChanged is returned by ReferenceUpdate when the old
// value supplied by the caller no longer matches what is on disk — the
// compare-and-swap of spec §4.6 step 2 failed.
var ErrReferenceHasChanged = errors.New("refs: reference has changed concurrently")

// ErrIsDir is returned when a ref path names a directory instead of a
// loose ref file (a dangling "refs/heads/foo/bar" vs "refs/heads/foo").
var ErrIsDir = errors.New("refs: is a directory")

// ErrPackedRefsBadFormat is returned for a packed-refs line that is
// neither a comment, a peeled-tag marker, nor "<hash> <name>".
var ErrPackedRefsBadFormat = errors.New("refs: malformed packed-refs line")

// fsBackend implements Backend over a ".git"-shaped directory tree:
// loose refs under refs/, a packed-refs fallback, and reflogs under
// logs/. Ported and generalized from the teacher's refs.fsBackend
// (modules/zeta/refs/filesystem.go) — same directory-walk, packed-refs
// line grammar, and lock-then-rename write path — adapted to fold a
// reflog append into ReferenceUpdate/ReferenceRemove themselves (spec
// §4.6 step 4) and to write ref updates through the shared
// storage.Lockfile primitive; ReferenceRemove and the packed-refs
// rewrite still lock through the local openNotExists helper.
type fsBackend struct {
	repoPath string
	reflogs  *reflogStore
}

// NewBackend constructs a Backend rooted at repoPath (a ".git"-shaped
// directory: it contains refs/, HEAD, and optionally packed-refs).
func NewBackend(repoPath string) Backend {
	return &fsBackend{repoPath: repoPath, reflogs: newReflogStore(repoPath)}
}

func (b *fsBackend) HEAD() (*plumbing.Reference, error) {
	return b.readRefFromHEAD()
}

func (b *fsBackend) References() (*DB, error) {
	db := &DB{cache: make(map[plumbing.ReferenceName]*plumbing.Reference), references: make([]*plumbing.Reference, 0, 100)}
	if err := b.walkReferencesTree(refsPath, db); err != nil {
		return nil, err
	}
	if err := b.addRefsFromPackedRefs(db); err != nil {
		return nil, err
	}
	head, err := b.readRefFromHEAD()
	if err != nil {
		return nil, err
	}
	db.head = head
	return db, nil
}

func (b *fsBackend) addRefsFromPackedRefs(db *DB) error {
	fd, err := os.Open(filepath.Join(b.repoPath, packedRefsPath))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer fd.Close()

	s := bufio.NewScanner(fd)
	for s.Scan() {
		ref, err := processPackedLine(s.Text())
		if err != nil {
			logrus.Warnf("refs: corrupt packed-refs in %s: %v", b.repoPath, err)
			return err
		}
		if ref == nil {
			continue
		}
		if _, ok := db.cache[ref.Name()]; !ok {
			db.references = append(db.references, ref)
			db.cache[ref.Name()] = ref
		}
	}
	return s.Err()
}

func (b *fsBackend) readRefFromHEAD() (*plumbing.Reference, error) {
	ref, err := b.readReferenceFile("HEAD")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (b *fsBackend) walkReferencesTree(prefix string, db *DB) error {
	files, err := os.ReadDir(filepath.Join(b.repoPath, prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, f := range files {
		newPrefix := prefix + "/" + f.Name()
		if f.IsDir() {
			if err := b.walkReferencesTree(newPrefix, db); err != nil {
				return err
			}
			continue
		}
		ref, err := b.readReferenceFile(newPrefix)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if ref == nil {
			continue
		}
		if _, ok := db.cache[ref.Name()]; !ok {
			db.references = append(db.references, ref)
			db.cache[ref.Name()] = ref
		}
	}
	return nil
}

func (b *fsBackend) readReferenceFile(refname string) (*plumbing.Reference, error) {
	p := filepath.Join(b.repoPath, refname)
	si, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if si.IsDir() {
		return nil, ErrIsDir
	}
	fd, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return readReferenceFrom(fd, refname)
}

func (b *fsBackend) readReferenceMatchPrefix(prefix string) (*plumbing.Reference, error) {
	refPath := filepath.Join(b.repoPath, prefix)
	si, err := os.Stat(refPath)
	if err != nil {
		return nil, err
	}
	if !si.IsDir() {
		fd, err := os.Open(refPath)
		if err != nil {
			return nil, err
		}
		defer fd.Close()
		return readReferenceFrom(fd, prefix)
	}
	var refname string
	err = filepath.WalkDir(refPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		refname, err = filepath.Rel(b.repoPath, path)
		if err != nil {
			return err
		}
		return filepath.SkipAll
	})
	if err != nil {
		return nil, err
	}
	if len(refname) == 0 {
		return nil, nil
	}
	fd, err := os.Open(filepath.Join(b.repoPath, refname))
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return readReferenceFrom(fd, refname)
}

func readReferenceFrom(rd io.Reader, name string) (*plumbing.Reference, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(data))
	return plumbing.NewReferenceFromStrings(name, line), nil
}

func processPackedLine(line string) (*plumbing.Reference, error) {
	if len(line) == 0 {
		return nil, nil
	}
	switch line[0] {
	case '#', '^':
		return nil, nil
	default:
		target, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, ErrPackedRefsBadFormat
		}
		return plumbing.NewReferenceFromStrings(name, target), nil
	}
}

func matchPackedLine(line, want string) (*plumbing.Reference, error) {
	ref, err := processPackedLine(line)
	if err != nil || ref == nil {
		return nil, err
	}
	if string(ref.Name()) != want {
		return nil, nil
	}
	return ref, nil
}

func prefixMatch(name, prefix string) bool {
	l := len(prefix)
	return len(name) >= l && name[:l] == prefix && (len(name) == l || name[l] == '/')
}

func matchPackedLinePrefix(line, prefix string) (*plumbing.Reference, error) {
	ref, err := processPackedLine(line)
	if err != nil || ref == nil {
		return nil, err
	}
	if !prefixMatch(string(ref.Name()), prefix) {
		return nil, nil
	}
	return ref, nil
}

func (b *fsBackend) packedRef(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	fd, err := os.Open(filepath.Join(b.repoPath, packedRefsPath))
	if os.IsNotExist(err) {
		return nil, plumbing.ErrReferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	s := bufio.NewScanner(fd)
	for s.Scan() {
		ref, err := matchPackedLine(s.Text(), string(name))
		if err != nil {
			return nil, err
		}
		if ref != nil {
			return ref, nil
		}
	}
	return nil, plumbing.ErrReferenceNotFound
}

func (b *fsBackend) matchPackedRefPrefix(prefix plumbing.ReferenceName) (*plumbing.Reference, error) {
	fd, err := os.Open(filepath.Join(b.repoPath, packedRefsPath))
	if os.IsNotExist(err) {
		return nil, plumbing.ErrReferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	s := bufio.NewScanner(fd)
	for s.Scan() {
		ref, err := matchPackedLinePrefix(s.Text(), string(prefix))
		if err != nil {
			return nil, err
		}
		if ref != nil {
			return ref, nil
		}
	}
	return nil, plumbing.ErrReferenceNotFound
}

func (b *fsBackend) Reference(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	if ref, err := b.readReferenceFile(string(name)); err == nil {
		return ref, nil
	}
	return b.packedRef(name)
}

func (b *fsBackend) ReferencePrefixMatch(prefix plumbing.ReferenceName) (*plumbing.Reference, error) {
	if ref, err := b.readReferenceMatchPrefix(string(prefix)); err == nil {
		return ref, nil
	}
	return b.matchPackedRefPrefix(prefix)
}

func (b *fsBackend) checkReference(old *plumbing.Reference) error {
	if old == nil {
		return nil
	}
	ref, err := b.Reference(old.Name())
	if err != nil {
		return err
	}
	if ref.Hash() != old.Hash() {
		logrus.Warnf("refs: compare-and-swap on %s failed: expected %s, found %s", old.Name(), old.Hash(), ref.Hash())
		return ErrReferenceHasChanged
	}
	return nil
}

// ReferenceUpdate implements spec §4.6's update_ref: lock, verify old,
// write, append reflog, then fsync+rename, which also releases the lock.
// A failure before the rename leaves the ref file untouched
// (storage.Lockfile.Rollback removes the lock); a reflog entry already
// appended stays if the final rename fails.
func (b *fsBackend) ReferenceUpdate(r, old *plumbing.Reference, committer object.Signature, reason string) error {
	var content string
	switch r.Type() {
	case plumbing.SymbolicReference:
		content = fmt.Sprintf("ref: %s\n", r.Target())
	case plumbing.HashReference:
		content = r.Hash().String() + "\n"
	}

	fileName := filepath.Join(b.repoPath, r.Name().String())
	lock, err := storage.NewLockfile(fileName)
	if err != nil {
		return err
	}
	if err := b.checkReference(old); err != nil {
		lock.Rollback()
		return err
	}
	if _, err := lock.Write([]byte(content)); err != nil {
		lock.Rollback()
		return err
	}

	var previous plumbing.Hash
	if old != nil {
		previous = old.Hash()
	}
	if err := b.reflogs.append(r.Name(), &ReflogEntry{Old: previous, New: r.Hash(), Committer: committer, Reason: reason}); err != nil {
		lock.Rollback()
		return err
	}
	return lock.Commit()
}

func openNotExists(name string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR|os.O_TRUNC, 0644)
}

func (b *fsBackend) lockPackedRefs(fn func() error) error {
	lockName := filepath.Join(b.repoPath, packedRefsPath+".lock")
	fd, err := openNotExists(lockName)
	if err != nil {
		if os.IsExist(err) {
			return plumbing.NewErrResourceLocked("reference", "packed-refs")
		}
		return err
	}
	err = fn()
	_ = fd.Close()
	_ = os.Remove(lockName)
	return err
}

func (b *fsBackend) rewritePackedRefsWithoutRef(name plumbing.ReferenceName) error {
	var tmpName string
	defer func() {
		if len(tmpName) != 0 {
			_ = os.Remove(tmpName)
		}
	}()
	packedRefs := filepath.Join(b.repoPath, packedRefsPath)
	found, err := func() (bool, error) {
		fd, err := os.Open(packedRefs)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		defer fd.Close()
		tmp, err := os.CreateTemp(b.repoPath, tmpPackedRefsPrefix)
		if err != nil {
			return false, err
		}
		defer tmp.Close()
		_ = tmp.Chmod(0644)
		tmpName = tmp.Name()

		s := bufio.NewScanner(fd)
		found := false
		for s.Scan() {
			line := s.Text()
			ref, err := processPackedLine(line)
			if err != nil {
				return false, err
			}
			if ref != nil && ref.Name() == name {
				found = true
				continue
			}
			if _, err := fmt.Fprintln(tmp, line); err != nil {
				return false, err
			}
		}
		return found, s.Err()
	}()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return os.Rename(tmpName, packedRefs)
}

// ReferenceRemove deletes r's loose file (or its packed-refs line), then
// appends a deletion reflog entry (New = ZeroHash), following git's own
// convention of logging ref removal as a transition to the zero hash.
func (b *fsBackend) ReferenceRemove(r *plumbing.Reference, committer object.Signature, reason string) error {
	fileName := filepath.Join(b.repoPath, r.Name().String())
	lockName := fileName + ".lock"
	fd, err := openNotExists(lockName)
	if err != nil {
		if os.IsExist(err) {
			return plumbing.NewErrResourceLocked("reference", r.Name())
		}
		return err
	}
	_ = fd.Close()
	defer func() {
		_ = os.Remove(lockName)
		_ = b.prune()
	}()
	if err := os.Remove(fileName); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := b.lockPackedRefs(func() error { return b.rewritePackedRefsWithoutRef(r.Name()) }); err != nil {
		return err
	}
	return b.reflogs.append(r.Name(), &ReflogEntry{Old: r.Hash(), New: plumbing.ZeroHash, Committer: committer, Reason: reason})
}

func (b *fsBackend) rewritePackedRefs() error {
	db := &DB{cache: make(map[plumbing.ReferenceName]*plumbing.Reference), references: make([]*plumbing.Reference, 0, 100)}
	if err := b.walkReferencesTree(refsPath, db); err != nil {
		return err
	}
	if len(db.references) == 0 {
		return nil
	}
	looseRefs := slices.Clone(db.references)
	if err := b.addRefsFromPackedRefs(db); err != nil {
		return err
	}

	var tempPath string
	defer func() {
		if len(tempPath) != 0 {
			_ = os.Remove(tempPath)
		}
	}()
	db.Sort()
	if err := func() error {
		tmp, err := os.CreateTemp(b.repoPath, tmpPackedRefsPrefix)
		if err != nil {
			return err
		}
		defer tmp.Close()
		tempPath = tmp.Name()
		w := bufio.NewWriter(tmp)
		if _, err := w.WriteString("# pack-refs with: sorted\n"); err != nil {
			return err
		}
		for _, ref := range db.references {
			if _, err := w.WriteString(ref.String() + "\n"); err != nil {
				return err
			}
		}
		return w.Flush()
	}(); err != nil {
		return err
	}

	packedRefs := filepath.Join(b.repoPath, packedRefsPath)
	if err := os.Rename(tempPath, packedRefs); err != nil {
		return err
	}
	for _, ref := range looseRefs {
		if err := os.Remove(filepath.Join(b.repoPath, ref.Name().String())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (b *fsBackend) Packed() error {
	if err := b.lockPackedRefs(b.rewritePackedRefs); err != nil {
		return err
	}
	_ = b.prune()
	return nil
}

var pruneKeeps = map[string]bool{"heads": true, "tags": true, "remotes": true}

func (b *fsBackend) prune() error {
	base := filepath.Join(b.repoPath, refsPath)
	entries, err := os.ReadDir(base)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := pruneDirsDFS(filepath.Join(base, e.Name()), pruneKeeps[e.Name()]); err != nil {
			return err
		}
	}
	return nil
}

func pruneDirsDFS(dir string, keep bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	empty := true
	for _, e := range entries {
		if !e.IsDir() {
			empty = false
			continue
		}
		if err := pruneDirsDFS(filepath.Join(dir, e.Name()), false); err != nil {
			return err
		}
	}
	if !empty || keep {
		return nil
	}
	return os.Remove(dir)
}
