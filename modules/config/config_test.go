package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooleanUnmarshalTOML(t *testing.T) {
	var b Boolean
	assert.True(t, b.IsUnset())

	require.NoError(t, b.UnmarshalTOML("yes"))
	assert.True(t, b.True())

	var b2 Boolean
	require.NoError(t, b2.UnmarshalTOML(false))
	assert.True(t, b2.False())

	var b3 Boolean
	require.NoError(t, b3.UnmarshalTOML("off"))
	assert.True(t, b3.False())
}

func TestBooleanMergePrefersAlreadySetValue(t *testing.T) {
	var narrow Boolean
	narrow.Set(false)
	var wide Boolean
	wide.Set(true)

	narrow.Merge(&wide)
	assert.True(t, narrow.False(), "narrow already had a value, merge must not override it")

	var unset Boolean
	unset.Merge(&wide)
	assert.True(t, unset.True())
}

func TestSizeUnmarshalText(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"512b", 512},
		{"1K", KiByte},
		{"10M", 10 * MiByte},
		{"1G", GiByte},
		{"2T", 2 * TiByte},
	}
	for _, c := range cases {
		var s Size
		require.NoError(t, s.UnmarshalText([]byte(c.in)), c.in)
		assert.Equal(t, c.want, s.Bytes, c.in)
	}
}

func TestSizeUnmarshalTextRejectsGarbage(t *testing.T) {
	var s Size
	assert.Error(t, s.UnmarshalText([]byte("not-a-size")))
	assert.Error(t, s.UnmarshalText([]byte("")))
}

func TestConfigOverwritePrefersRepoLayer(t *testing.T) {
	base := Default()
	repo := &Config{Core: Core{HashALGO: "sha256"}, Diff: Diff{MinScore: 70}}

	base.Overwrite(repo)
	assert.Equal(t, "sha256", base.Core.HashALGO)
	assert.Equal(t, "zlib", base.Core.CompressionALGO, "unset fields in the narrower layer must not clobber the wider one")
	assert.Equal(t, 70, base.Diff.MinScore)
	assert.Equal(t, 1000, base.Diff.RenameLimit)
}

func TestLoadMergesRepoConfigOverDefault(t *testing.T) {
	t.Setenv(globalConfigEnv, filepath.Join(t.TempDir(), "missing-global.toml"))

	dir := t.TempDir()
	repoConfig := "[core]\nhashAlgo = \"sha256\"\nignoreCase = true\n\n[diff]\nminScore = 80\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte(repoConfig), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sha256", cfg.Core.HashALGO)
	assert.True(t, cfg.Core.IgnoreCase.True())
	assert.Equal(t, 80, cfg.Diff.MinScore)
	assert.Equal(t, "zlib", cfg.Core.CompressionALGO)
}

func TestLoadWithNoRepoConfigReturnsDefaults(t *testing.T) {
	t.Setenv(globalConfigEnv, filepath.Join(t.TempDir(), "missing-global.toml"))

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sha1", cfg.Core.HashALGO)
	assert.True(t, cfg.Core.TrustExecutableBit.True())
}
