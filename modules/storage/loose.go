// Package storage implements the on-disk object database façade (C4):
// a loose-object filesystem store, the pack lookup path, and the
// lockfile primitive (C11) that refs uses for ref updates.
package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// looseStore implements read/write access to objects/XX/YYYY... on disk,
// grounded on the teacher's fileStorer (modules/zeta/backend/file_storer.go):
// same temp-then-rename discipline, same directory-walk Search, but with
// the 2-level hex fanout and the literal git loose-object framing that
// spec §6.1 requires instead of the teacher's custom BLOB_MAGIC envelope.
type looseStore struct {
	root     string
	incoming string
}

var ignoreLooseDir = map[string]bool{"pack": true, "info": true}

func newLooseStore(root string) *looseStore {
	return &looseStore{root: root, incoming: filepath.Join(root, "incoming")}
}

// Join returns the canonical path of a loose object: objects/XX/YYYY...
func Join(root string, oid plumbing.Hash) string {
	enc := oid.String()
	return filepath.Join(root, enc[:2], enc[2:])
}

func (s *looseStore) path(oid plumbing.Hash) string {
	return Join(s.root, oid)
}

// Open returns a decoding Reader over the loose object named by oid.
func (s *looseStore) Open(oid plumbing.Hash) (*objfile.Reader, error) {
	f, err := os.Open(s.path(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.NoSuchObject(oid)
		}
		return nil, err
	}
	r, err := objfile.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (s *looseStore) Exists(oid plumbing.Hash) bool {
	_, err := os.Stat(s.path(oid))
	return err == nil
}

// Write stores payload as a loose object of the given type, returning its
// digest. Writes are idempotent: if the destination already exists the
// write is a no-op, per spec §4.1.1 ("on collision the write is a no-op").
func (s *looseStore) Write(typ objfile.ObjectType, payload []byte) (plumbing.Hash, error) {
	oid := objfile.HashObject(typ, payload)
	objectPath := s.path(oid)
	if _, err := os.Stat(objectPath); err == nil {
		return oid, nil
	}

	if err := os.MkdirAll(s.incoming, 0755); err != nil {
		return plumbing.ZeroHash, err
	}
	tmp, err := os.CreateTemp(s.incoming, "obj")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	tmpPath := tmp.Name()

	ww, err := objfile.NewWriter(tmp, typ, int64(len(payload)))
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return plumbing.ZeroHash, err
	}
	if _, err := ww.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return plumbing.ZeroHash, err
	}
	if err := ww.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return plumbing.ZeroHash, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return plumbing.ZeroHash, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return plumbing.ZeroHash, err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		os.Remove(tmpPath)
		return plumbing.ZeroHash, err
	}
	if err := finalizeObject(tmpPath, objectPath); err != nil {
		os.Remove(tmpPath)
		if os.IsExist(err) {
			return oid, nil
		}
		return plumbing.ZeroHash, err
	}
	return oid, nil
}

// finalizeObject renames a completed temp file into place and makes it
// read-only, mirroring the teacher's finalizeObject/strengthen.FinalizeObject
// pair (modules/zeta/backend/file_storer.go, modules/strengthen).
func finalizeObject(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return err
	}
	_ = os.Chmod(newpath, 0444)
	return nil
}

// Search resolves a short hex prefix to a full Hash by scanning the
// fanout subdirectory, per spec §3 ("short digests... resolution is by
// scan of known objects").
func (s *looseStore) Search(prefix plumbing.Hash, prefixLen int) (plumbing.Hash, error) {
	full := prefix.String()
	if prefixLen < 2 {
		return plumbing.ZeroHash, fmt.Errorf("storage: prefix too short")
	}
	searchRoot := filepath.Join(s.root, full[0:2])
	prefixStr := full[:prefixLen]
	var found plumbing.Hash
	err := filepath.WalkDir(searchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if ignoreLooseDir[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		name := full[0:2] + d.Name()
		if !strings.HasPrefix(name, prefixStr) {
			return nil
		}
		if !plumbing.ValidateHashHex(name) {
			return nil
		}
		if !found.IsZero() {
			return fmt.Errorf("storage: ambiguous prefix %s", prefixStr)
		}
		found = plumbing.NewHash(name)
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if found.IsZero() {
		return plumbing.ZeroHash, plumbing.NoSuchObject(prefix)
	}
	return found, nil
}

// ForEach enumerates every loose object's Hash, skipping the pack/
// incoming/info housekeeping directories.
func (s *looseStore) ForEach(cb func(plumbing.Hash) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if ignoreLooseDir[d.Name()] || d.Name() == "incoming" {
				return filepath.SkipDir
			}
			return nil
		}
		dir := filepath.Base(filepath.Dir(path))
		name := dir + d.Name()
		if !plumbing.ValidateHashHex(name) {
			return nil
		}
		return cb(plumbing.NewHash(name))
	})
}
