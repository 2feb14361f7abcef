package refs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/object"
	"github.com/vcsforge/gitcore/modules/plumbing"
)

func testCommitter() object.Signature {
	return object.Signature{Name: "Pat Doe", Email: "pdoe@example.org", When: time.Unix(1337892984, 0).In(time.UTC)}
}

func TestReferenceUpdateAndRead(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(dir)

	oid := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	ref := plumbing.NewHashReference("refs/heads/main", oid)
	require.NoError(t, b.ReferenceUpdate(ref, nil, testCommitter(), "commit: initial"))

	got, err := b.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, oid, got.Hash())
	assert.Equal(t, plumbing.HashReference, got.Type())
}

func TestReferenceUpdateRejectsStaleCompareAndSwap(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(dir)

	oid1 := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	oid2 := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ref1 := plumbing.NewHashReference("refs/heads/main", oid1)
	require.NoError(t, b.ReferenceUpdate(ref1, nil, testCommitter(), "commit: initial"))

	stale := plumbing.NewHashReference("refs/heads/main", oid2)
	staleOld := plumbing.NewHashReference("refs/heads/main", oid2) // wrong "old" value
	err := b.ReferenceUpdate(stale, staleOld, testCommitter(), "commit: should fail")
	assert.ErrorIs(t, err, ErrReferenceHasChanged)
}

func TestReferenceUpdateAppendsReflog(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(dir).(*fsBackend)

	oid1 := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	oid2 := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ref1 := plumbing.NewHashReference("refs/heads/main", oid1)
	require.NoError(t, b.ReferenceUpdate(ref1, nil, testCommitter(), "commit: initial"))

	ref2 := plumbing.NewHashReference("refs/heads/main", oid2)
	require.NoError(t, b.ReferenceUpdate(ref2, ref1, testCommitter(), "commit: amend"))

	log, err := b.reflogs.read("refs/heads/main")
	require.NoError(t, err)
	require.Len(t, log.Entries, 2)
	// newest first
	assert.Equal(t, oid1, log.Entries[0].Old)
	assert.Equal(t, oid2, log.Entries[0].New)
	assert.Equal(t, "commit: amend", log.Entries[0].Reason)
	assert.True(t, log.Entries[1].Old.IsZero())
	assert.Equal(t, oid1, log.Entries[1].New)
}

func TestReferenceRemoveLogsZeroHash(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(dir).(*fsBackend)

	oid := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	ref := plumbing.NewHashReference("refs/heads/topic", oid)
	require.NoError(t, b.ReferenceUpdate(ref, nil, testCommitter(), "commit: initial"))

	require.NoError(t, b.ReferenceRemove(ref, testCommitter(), "branch: deleted"))

	_, err := b.Reference("refs/heads/topic")
	assert.Error(t, err)

	log, err := b.reflogs.read("refs/heads/topic")
	require.NoError(t, err)
	require.NotEmpty(t, log.Entries)
	assert.True(t, log.Entries[0].New.IsZero())
}

func TestHEADSymbolicResolve(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(dir)

	oid := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	ref := plumbing.NewHashReference("refs/heads/main", oid)
	require.NoError(t, b.ReferenceUpdate(ref, nil, testCommitter(), "commit: initial"))

	head := plumbing.NewSymbolicReference("HEAD", "refs/heads/main")
	require.NoError(t, b.ReferenceUpdate(head, nil, testCommitter(), "checkout: moving"))

	resolved, err := Resolve(b, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, oid, resolved.Hash())
}

func TestReferencesDBLookupAndShortName(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(dir)

	oid := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	ref := plumbing.NewHashReference("refs/heads/main", oid)
	require.NoError(t, b.ReferenceUpdate(ref, nil, testCommitter(), "commit: initial"))

	db, err := b.References()
	require.NoError(t, err)

	found := db.Lookup("main")
	require.NotNil(t, found)
	assert.Equal(t, oid, found.Hash())

	assert.Equal(t, "main", db.ShortName("refs/heads/main", false))
}
