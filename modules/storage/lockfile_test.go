package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockfileCommitWritesTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "refs", "heads", "main")

	lock, err := NewLockfile(target)
	require.NoError(t, err)
	_, err = lock.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, lock.Commit())

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
	_, err = os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(err), "lockfile must be gone after commit")
}

func TestLockfileSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main")

	lock1, err := NewLockfile(target)
	require.NoError(t, err)
	defer lock1.Rollback()

	_, err = NewLockfile(target)
	assert.Error(t, err)
}

func TestLockfileRollbackLeavesNoTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main")

	lock, err := NewLockfile(target)
	require.NoError(t, err)
	_, err = lock.Write([]byte("discarded"))
	require.NoError(t, err)
	lock.Rollback()

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestLockfileCommitTwiceErrors(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main")

	lock, err := NewLockfile(target)
	require.NoError(t, err)
	require.NoError(t, lock.Commit())
	assert.Error(t, lock.Commit())
}
