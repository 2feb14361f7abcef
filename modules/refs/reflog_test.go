package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

func TestReflogEntryStringAndParseRoundTrip(t *testing.T) {
	e := &ReflogEntry{
		Old:       plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		New:       plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Committer: testCommitter(),
		Reason:    "commit: message here",
	}
	line := e.String()

	got, err := parseReflogLine(line)
	assert.NoError(t, err)
	assert.Equal(t, e.Old, got.Old)
	assert.Equal(t, e.New, got.New)
	assert.Equal(t, e.Reason, got.Reason)
	assert.Equal(t, e.Committer.Name, got.Committer.Name)
	assert.Equal(t, e.Committer.Email, got.Committer.Email)
	assert.True(t, e.Committer.When.Equal(got.Committer.When))
}

func TestReflogEntryStringOmitsReasonWhenEmpty(t *testing.T) {
	e := &ReflogEntry{
		Old:       plumbing.ZeroHash,
		New:       plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Committer: testCommitter(),
	}
	line := e.String()
	assert.NotContains(t, line, "\t")
}

func TestReflogPushChainsOldToPreviousNew(t *testing.T) {
	log := &Reflog{name: "refs/heads/main"}
	h1 := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	h2 := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	log.Push(h1, testCommitter(), "commit: first")
	log.Push(h2, testCommitter(), "commit: second")

	assert.Len(t, log.Entries, 2)
	assert.True(t, log.Entries[1].Old.IsZero())
	assert.Equal(t, h1, log.Entries[1].New)
	assert.Equal(t, h1, log.Entries[0].Old)
	assert.Equal(t, h2, log.Entries[0].New)
}

func TestParseReflogLineRejectsMalformed(t *testing.T) {
	_, err := parseReflogLine("not-a-valid-line")
	assert.Error(t, err)
}

func TestReflogStoreAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	s := newReflogStore(dir)

	h1 := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	h2 := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	assert.NoError(t, s.append("refs/heads/main", &ReflogEntry{New: h1, Committer: testCommitter(), Reason: "commit: a"}))
	assert.NoError(t, s.append("refs/heads/main", &ReflogEntry{Old: h1, New: h2, Committer: testCommitter(), Reason: "commit: b"}))

	log, err := s.read("refs/heads/main")
	assert.NoError(t, err)
	assert.Len(t, log.Entries, 2)
	assert.Equal(t, h2, log.Entries[0].New)
	assert.Equal(t, h1, log.Entries[1].New)
}

func TestReflogStoreReadMissingReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := newReflogStore(dir)
	log, err := s.read("refs/heads/nonexistent")
	assert.NoError(t, err)
	assert.True(t, log.Empty())
}

