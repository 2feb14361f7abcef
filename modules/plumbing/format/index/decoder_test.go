package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
)

func TestDecodeRejectsBadChecksum(t *testing.T) {
	idx := &Index{Version: 2}
	e := idx.Add("a")
	e.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	e.Mode = filemode.Regular

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xff

	var loaded Index
	require.ErrorIs(t, NewDecoder(bytes.NewReader(corrupt)).Decode(&loaded), ErrInvalidChecksum)
}

func TestDecodeResolveUndoExtensionRoundTrip(t *testing.T) {
	idx := &Index{Version: 2}
	idx.ResolveUndo = &ResolveUndo{Entries: []ResolveUndoEntry{
		{Path: "conflicted", Stages: map[Stage]plumbing.Hash{
			AncestorMode: plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"),
			OurMode:      plumbing.NewHash("2e81171448eb9f2ec0b41beb2b0f1a7a0c3fe1fe"),
			TheirMode:    plumbing.NewHash("e25b29c8946e0e192fae2edc1dabf7be71e8ecf3"),
		}},
	}}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded))
	require.NotNil(t, loaded.ResolveUndo)
	require.Len(t, loaded.ResolveUndo.Entries, 1)
	got := loaded.ResolveUndo.Entries[0]
	require.Equal(t, "conflicted", got.Path)
	require.Equal(t, idx.ResolveUndo.Entries[0].Stages[OurMode], got.Stages[OurMode])
}

func TestDecodeUnknownOptionalExtensionIsSkipped(t *testing.T) {
	idx := &Index{Version: 2}
	e := idx.Add("a")
	e.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	e.Mode = filemode.Regular

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.encodeHeader(idx))
	require.NoError(t, enc.encodeEntries(idx))
	// A lowercase-led signature is optional per git's extension grammar;
	// unrecognized optional extensions are skipped rather than rejected.
	require.NoError(t, enc.encodeRawExtension([4]byte{'l', 'i', 'n', 'k'}, []byte("opaque")))
	sum := enc.hasher.Sum()
	buf.Write(sum[:])

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded))
	require.Len(t, loaded.Entries, 1)
	require.Nil(t, loaded.Cache)
}

func TestDecodeUnknownMandatoryExtensionErrors(t *testing.T) {
	idx := &Index{Version: 2}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.encodeHeader(idx))
	require.NoError(t, enc.encodeEntries(idx))
	require.NoError(t, enc.encodeRawExtension([4]byte{'L', 'I', 'N', 'K'}, []byte("opaque")))
	sum := enc.hasher.Sum()
	buf.Write(sum[:])

	var loaded Index
	require.ErrorIs(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded), ErrUnknownExtension)
}

func TestIndexGlobMatchesPerSegment(t *testing.T) {
	idx := &Index{Version: 2}
	for _, name := range []string{"sigma", "sigma/file", "sigmax", "omega"} {
		e := idx.Add(name)
		e.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
		e.Mode = filemode.Regular
	}

	matches, err := idx.Glob("s*")
	require.NoError(t, err)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	require.ElementsMatch(t, []string{"sigma", "sigmax"}, names)
}
