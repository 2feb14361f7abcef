package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
)

func TestEncodeEmptyIndex(t *testing.T) {
	idx := &Index{Version: 2}
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded))
	require.Empty(t, loaded.Entries)
	require.Equal(t, uint32(2), loaded.Version)
}

func TestEncodeRejectsUnsupportedVersion(t *testing.T) {
	idx := &Index{Version: 4}
	var buf bytes.Buffer
	require.ErrorIs(t, NewEncoder(&buf).Encode(idx), ErrUnsupportedVersion)
}

func TestEncodeDecodeExtendedFlagsRoundTrip(t *testing.T) {
	idx := &Index{Version: 3}
	foo := idx.Add("foo")
	foo.Hash = plumbing.NewHash("e25b29c8946e0e192fae2edc1dabf7be71e8ecf3")
	foo.Mode = filemode.Regular
	foo.Stage = TheirMode
	foo.Size = 42

	bar := idx.Add("bar")
	bar.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	bar.Mode = filemode.Regular
	bar.SkipWorktree = true

	baz := idx.Add("baz/bar")
	baz.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	baz.Mode = filemode.Regular
	baz.IntentToAdd = true
	baz.Valid = true

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded))
	require.Len(t, loaded.Entries, 3)

	byName := make(map[string]*Entry, len(loaded.Entries))
	for _, e := range loaded.Entries {
		byName[e.Name] = e
	}

	require.Equal(t, TheirMode, byName["foo"].Stage)
	require.Equal(t, uint32(42), byName["foo"].Size)

	require.True(t, byName["bar"].SkipWorktree)
	require.False(t, byName["bar"].Valid)

	require.True(t, byName["baz/bar"].IntentToAdd)
	require.True(t, byName["baz/bar"].Valid)
}

func TestEncodeDecodeValidBitRoundTrip(t *testing.T) {
	idx := &Index{Version: 2}
	e := idx.Add("assumed-unchanged")
	e.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	e.Mode = filemode.Regular
	e.Valid = true

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded))
	require.Len(t, loaded.Entries, 1)
	require.True(t, loaded.Entries[0].Valid, "ASSUME_VALID bit (flags bit 15) must survive encode/decode")

	// Confirm the bit doesn't require the EXTENDED word: a v2-only entry
	// (no SkipWorktree/IntentToAdd) still round-trips Valid.
	var second bytes.Buffer
	require.NoError(t, NewEncoder(&second).Encode(&loaded))
	require.True(t, bytes.Equal(buf.Bytes(), second.Bytes()))
}
