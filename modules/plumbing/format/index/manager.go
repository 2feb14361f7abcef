package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
)

// ErrConflict is returned for a d/f (directory/file) conflict: staging a
// path that is a prefix-directory of an already-staged path, or vice
// versa, per spec §8 ("add(\"a/b\") then add(\"a\") fails with Conflict
// unless replacement is authorized").
type ErrConflict struct {
	Path    string
	Blocker string
}

func (e *ErrConflict) Error() string {
	return "index: " + e.Path + " conflicts with " + e.Blocker
}

// ObjectWriter is the subset of the object-store façade the staging
// manager needs to content-address a file's bytes as a blob.
type ObjectWriter interface {
	WriteBlob(payload []byte) (plumbing.Hash, error)
}

// Manager wraps an Index with the working-tree staging operations of
// spec §4.5: add, remove, and racy-timestamp-aware refresh. The banded
// parallel refresh is grounded on the teacher's general concurrency
// idiom of fanning stat() calls out across an errgroup (the same shape
// used by modules/zeta/odb for parallel prefetch).
type Manager struct {
	Root        string
	Index       *Index
	writer      ObjectWriter
	lastSavedAt int64 // unix seconds at which the index was last written
}

func NewManager(root string, idx *Index, writer ObjectWriter) *Manager {
	return &Manager{Root: root, Index: idx, writer: writer}
}

// Add stages path at stage 0, replacing any existing stage-0 entry for
// the same path. Returns ErrConflict if path is blocked by, or itself
// blocks, an existing entry (d/f conflict), unless authorizeReplace is
// true, in which case the blocking entries are removed first.
func (m *Manager) Add(path string, authorizeReplace bool) (*Entry, error) {
	path = filepath.ToSlash(path)

	var blockers []string
	for _, e := range m.Index.Entries {
		if e.Stage != Merged {
			continue
		}
		if e.Name == path {
			continue
		}
		if isDirPrefixOf(e.Name, path) || isDirPrefixOf(path, e.Name) {
			blockers = append(blockers, e.Name)
		}
	}
	if len(blockers) > 0 {
		if !authorizeReplace {
			return nil, &ErrConflict{Path: path, Blocker: blockers[0]}
		}
		for _, b := range blockers {
			_, _ = m.Index.Remove(b)
		}
	}

	full := filepath.Join(m.Root, filepath.FromSlash(path))
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, err
	}

	oid, err := m.writer.WriteBlob(content)
	if err != nil {
		return nil, err
	}
	mode, err := filemode.NewFromOSFileMode(fi.Mode())
	if err != nil {
		return nil, err
	}

	existing, _ := m.Index.Entry(path)
	_, _ = m.Index.Remove(path)
	e := m.Index.Add(path)
	e.Hash = oid
	e.Size = uint32(len(content))
	e.ModifiedAt = fi.ModTime()
	e.CreatedAt = fi.ModTime()
	e.Mode = mode
	e.Uptodate = true
	// VALID (assume-unchanged) survives a re-add only if the mode hasn't
	// moved out from under it; a mode change means the working-tree
	// content the bit vouched for is no longer what's on disk.
	if existing != nil && existing.Valid && existing.Mode == mode {
		e.Valid = true
	}

	if m.Index.Cache != nil {
		m.Index.Cache.Invalidate(path)
	}

	return e, nil
}

// isDirPrefixOf reports whether dir, treated as a directory, contains
// path: i.e. path == dir or path starts with dir+"/".
func isDirPrefixOf(dir, path string) bool {
	return path == dir || strings.HasPrefix(path, dir+"/")
}

// Remove deletes the stage-0 entry at path.
func (m *Manager) Remove(path string) (*Entry, error) {
	e, err := m.Index.Remove(path)
	if err == nil && m.Index.Cache != nil {
		m.Index.Cache.Invalidate(path)
	}
	return e, err
}

// MarkSaved records the time at which the index was (or will be)
// written, which Refresh uses to detect the racy-timestamp window:
// a same-second edit is indistinguishable from "already matches the
// cached stat" using second-granularity comparison alone.
func (m *Manager) MarkSaved(at int64) {
	m.lastSavedAt = at
}

// Refresh restats every stage-0 entry against the working tree,
// concurrently, and marks clean entries Uptodate. An entry whose mtime
// equals the index's last-save time (the racy window of spec §8) is
// never marked clean, and its cached Size is smudged to 0 so a
// subsequent Save cannot appear to validate a race that didn't
// actually get checked.
func (m *Manager) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(20)
	const bandSize = 500

	for start := 0; start < len(m.Index.Entries); start += bandSize {
		end := start + bandSize
		if end > len(m.Index.Entries) {
			end = len(m.Index.Entries)
		}
		band := m.Index.Entries[start:end]
		g.Go(func() error {
			for _, e := range band {
				if e.Stage != Merged {
					continue
				}
				// Per spec §4.5, SKIP_WORKTREE and VALID (assume-unchanged)
				// entries are not restated; the caller is trusted to know
				// better than a stat() call.
				if e.SkipWorktree || e.Valid {
					e.Uptodate = true
					continue
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				m.refreshEntry(e)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) refreshEntry(e *Entry) {
	full := filepath.Join(m.Root, filepath.FromSlash(e.Name))
	fi, err := os.Stat(full)
	if err != nil {
		e.Uptodate = false
		return
	}

	mode, modeErr := filemode.NewFromOSFileMode(fi.Mode())

	racy := m.lastSavedAt != 0 && fi.ModTime().Unix() == m.lastSavedAt
	clean := !racy && modeErr == nil &&
		fi.ModTime().Equal(e.ModifiedAt) &&
		uint32(fi.Size()) == e.Size &&
		mode == e.Mode

	if clean {
		e.Uptodate = true
		return
	}

	e.Uptodate = false
	if racy {
		e.Size = 0
	}
}
