package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

type fakeWriter struct{}

func (fakeWriter) WriteBlob(payload []byte) (plumbing.Hash, error) {
	return objfile.HashObject(objfile.BlobObject, payload), nil
}

func TestManagerAddThenRefreshUptodate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("hello"), 0644))

	idx := &Index{Version: 2}
	m := NewManager(root, idx, fakeWriter{})

	e, err := m.Add("a", false)
	require.NoError(t, err)
	require.True(t, e.Uptodate)

	require.NoError(t, m.Refresh(context.Background()))
	require.True(t, idx.Entries[0].Uptodate)
}

func TestManagerAddDFConflict(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a-sibling"), []byte("y"), 0644))

	idx := &Index{Version: 2}
	m := NewManager(root, idx, fakeWriter{})

	_, err := m.Add("a/b", false)
	require.NoError(t, err)

	// "a" conflicts with the already-staged "a/b" (d/f conflict).
	require.NoError(t, os.RemoveAll(filepath.Join(root, "a")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("z"), 0644))
	_, err = m.Add("a", false)
	require.Error(t, err)
	var conflict *ErrConflict
	require.ErrorAs(t, err, &conflict)

	// Authorized replacement removes the blocker and succeeds.
	_, err = m.Add("a", true)
	require.NoError(t, err)
	_, err = idx.Entry("a/b")
	require.Error(t, err, "a/b must be gone after authorized replacement")
	got, err := idx.Entry("a")
	require.NoError(t, err)
	require.Equal(t, "a", got.Name)
}

func TestManagerRacyTimestampSmudge(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	idx := &Index{Version: 2}
	m := NewManager(root, idx, fakeWriter{})
	e, err := m.Add("a", false)
	require.NoError(t, err)

	sameSecond := e.ModifiedAt.Truncate(time.Second)
	m.MarkSaved(sameSecond.Unix())

	// Edit again within the same second the index claims to have been
	// saved at: refresh must not trust the stat match.
	require.NoError(t, os.Chtimes(path, sameSecond, sameSecond))
	require.NoError(t, os.WriteFile(path, []byte("v2-longer"), 0644))
	require.NoError(t, os.Chtimes(path, sameSecond, sameSecond))

	require.NoError(t, m.Refresh(context.Background()))
	require.False(t, e.Uptodate, "racy window must never be reported clean")
	require.Equal(t, uint32(0), e.Size, "entry size is smudged to 0 on the racy path")
}
