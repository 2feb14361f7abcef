package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

// Lockfile implements the C11 primitive: exclusive-create, write, fsync,
// atomic rename, rollback on any failure. refs' ReferenceUpdate is its
// only caller; ref removal and the packed-refs rewrite lock through refs'
// own openNotExists helper, and the index package has no lock-protected
// file write. Grounded on the ad hoc openNotExists/
// lockPackedRefs pair in modules/zeta/refs/filesystem.go, generalized
// into a reusable type.
type Lockfile struct {
	target string
	lock   string
	fh     *os.File
	done   bool
}

// NewLockfile acquires name+".lock" via O_CREAT|O_EXCL. If the lock is
// already held, returns plumbing.ErrResourceLocked.
func NewLockfile(target string) (*Lockfile, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	lockPath := target + ".lock"
	fh, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, plumbing.NewErrResourceLocked("lockfile", plumbing.ReferenceName(target))
		}
		return nil, err
	}
	return &Lockfile{target: target, lock: lockPath, fh: fh}, nil
}

// Write writes p to the lockfile.
func (l *Lockfile) Write(p []byte) (int, error) {
	return l.fh.Write(p)
}

// File exposes the underlying *os.File for callers that need direct
// positioned writes. No caller in the module uses it.
func (l *Lockfile) File() *os.File {
	return l.fh
}

// Commit fsyncs the lockfile and atomically renames it over target.
// After Commit (success or failure) the lock is considered resolved;
// Rollback becomes a no-op.
func (l *Lockfile) Commit() error {
	if l.done {
		return fmt.Errorf("storage: lockfile %s already resolved", l.lock)
	}
	if err := l.fh.Sync(); err != nil {
		l.fh.Close()
		os.Remove(l.lock)
		l.done = true
		return err
	}
	if err := l.fh.Close(); err != nil {
		os.Remove(l.lock)
		l.done = true
		return err
	}
	if err := os.Rename(l.lock, l.target); err != nil {
		os.Remove(l.lock)
		l.done = true
		return err
	}
	l.done = true
	return nil
}

// Rollback discards the lockfile without touching target. Any error path
// in a lockfile-protected write must call this (spec §7).
func (l *Lockfile) Rollback() {
	if l.done {
		return
	}
	l.done = true
	l.fh.Close()
	os.Remove(l.lock)
}
