package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

func TestDatabaseWriteAndReadBlob(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	content := []byte("hello world")
	oid, err := db.WriteObject(objfile.BlobObject, content)
	require.NoError(t, err)
	assert.True(t, db.Exists(oid))

	blob, err := db.Blob(context.Background(), oid)
	require.NoError(t, err)
	got, err := blob.Bytes()
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDatabaseWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	content := []byte("same content twice")
	oid1, err := db.WriteObject(objfile.BlobObject, content)
	require.NoError(t, err)
	oid2, err := db.WriteObject(objfile.BlobObject, content)
	require.NoError(t, err)
	assert.Equal(t, oid1, oid2)
}

func TestDatabaseCommitRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	treeContent := []byte{}
	treeOid, err := db.WriteObject(objfile.TreeObject, treeContent)
	require.NoError(t, err)

	raw := []byte("tree " + treeOid.String() + "\n" +
		"author Pat Doe <pdoe@example.org> 1337892984 -0700\n" +
		"committer Pat Doe <pdoe@example.org> 1337892984 -0700\n" +
		"\ntest commit\n")
	oid, err := db.WriteObject(objfile.CommitObject, raw)
	require.NoError(t, err)

	commit, err := db.Commit(context.Background(), oid)
	require.NoError(t, err)
	assert.Equal(t, treeOid, commit.Tree)
	assert.Equal(t, "test commit\n", commit.Message)

	// A second fetch should hit the parsed-object cache and return the
	// same pointer rather than re-decoding.
	again, err := db.Commit(context.Background(), oid)
	require.NoError(t, err)
	assert.Same(t, commit, again)
}

func TestDatabaseMissingObject(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Blob(context.Background(), objfile.HashObject(objfile.BlobObject, []byte("nope")))
	assert.Error(t, err)
	assert.False(t, db.Exists(objfile.HashObject(objfile.BlobObject, []byte("nope"))))
}
