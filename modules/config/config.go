// Package config implements the TOML-backed repository configuration of
// SPEC_FULL.md §A2: hash/compression algorithm choice, the
// core.trustExecutableBit / core.ignoreCase stat-comparison knobs of
// spec §4.5, and the rename/copy detection thresholds consumed by the
// diff engine (§4.7). Ported in shape from the teacher's
// modules/zeta/config package (config.go, type.go, decode.go):
// tri-state Boolean, suffix-parsed Size, and the same
// system→global→repo Overwrite layering, trimmed to the subset CORE
// actually consults (the teacher's remote-transport, accelerator, and
// fragment-store knobs have no equivalent component here).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Byte-size multiples, used by Size.UnmarshalText.
const (
	Byte int64 = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
	TiByte
)

// Boolean is a tri-state (unset/true/false) bool, so a config layer can
// tell "the user didn't say" from "the user said false" when merging
// system → global → repo config. Ported from the teacher's
// config.Boolean.
type Boolean struct {
	val int
}

const (
	booleanUnset = iota
	booleanTrue
	booleanFalse
)

func (b *Boolean) UnmarshalTOML(a any) error {
	switch v := a.(type) {
	case bool:
		b.Set(v)
		return nil
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "on", "1":
			b.val = booleanTrue
		case "false", "no", "off", "0":
			b.val = booleanFalse
		}
		return nil
	default:
		return fmt.Errorf("config: unexpected boolean value %v", a)
	}
}

func (b *Boolean) IsUnset() bool { return b.val == booleanUnset }
func (b *Boolean) True() bool    { return b.val == booleanTrue }
func (b *Boolean) False() bool   { return b.val == booleanFalse }

func (b *Boolean) Set(v bool) {
	if v {
		b.val = booleanTrue
		return
	}
	b.val = booleanFalse
}

// Merge fills b from other only if b itself is unset, giving the
// narrower (repo-level) config priority over the wider one.
func (b *Boolean) Merge(other *Boolean) {
	if b.IsUnset() {
		b.val = other.val
	}
}

// Size parses a suffixed byte quantity ("512K", "10M", "1g") into a
// plain int64, ported from the teacher's config.Size.
type Size struct {
	Bytes int64
}

var errSizeSyntax = errors.New("config: invalid size syntax")

func toLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func (s *Size) UnmarshalText(text []byte) error {
	if bytes.HasSuffix(text, []byte("b")) || bytes.HasSuffix(text, []byte("B")) {
		text = text[:len(text)-1]
	}
	if len(text) == 0 {
		return errSizeSyntax
	}
	ratio := Byte
	switch toLower(text[len(text)-1]) {
	case 'k':
		ratio, text = KiByte, text[:len(text)-1]
	case 'm':
		ratio, text = MiByte, text[:len(text)-1]
	case 'g':
		ratio, text = GiByte, text[:len(text)-1]
	case 't':
		ratio, text = TiByte, text[:len(text)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(text)), 10, 64)
	if err != nil {
		return errSizeSyntax
	}
	s.Bytes = n * ratio
	return nil
}

func overwriteString(a, b string) string {
	if len(b) != 0 {
		return b
	}
	return a
}

// User is the identity recorded on commits/tags/reflog entries when the
// caller doesn't supply one explicitly.
type User struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

func (u *User) Empty() bool { return u == nil || len(u.Name) == 0 || len(u.Email) == 0 }

func (u *User) Overwrite(o *User) {
	u.Name = overwriteString(u.Name, o.Name)
	u.Email = overwriteString(u.Email, o.Email)
}

// Core carries the object-model/index knobs named in spec §4.1/§4.5.
type Core struct {
	HashALGO           string  `toml:"hashAlgo,omitempty"`
	CompressionALGO    string  `toml:"compressionAlgo,omitempty"`
	TrustExecutableBit Boolean `toml:"trustExecutableBit,omitempty"`
	IgnoreCase         Boolean `toml:"ignoreCase,omitempty"`
	SymlinksSupported  Boolean `toml:"symlinks,omitempty"`
	Editor             string  `toml:"editor,omitempty"`
}

func (c *Core) Overwrite(o *Core) {
	c.HashALGO = overwriteString(c.HashALGO, o.HashALGO)
	c.CompressionALGO = overwriteString(c.CompressionALGO, o.CompressionALGO)
	if !o.TrustExecutableBit.IsUnset() {
		c.TrustExecutableBit = o.TrustExecutableBit
	}
	if !o.IgnoreCase.IsUnset() {
		c.IgnoreCase = o.IgnoreCase
	}
	if !o.SymlinksSupported.IsUnset() {
		c.SymlinksSupported = o.SymlinksSupported
	}
	c.Editor = overwriteString(c.Editor, o.Editor)
}

// Diff carries the rename/copy detection thresholds consumed by package
// diff's Options (§4.7).
type Diff struct {
	RenameLimit  int  `toml:"renameLimit,omitzero"`
	MinScore     int  `toml:"minScore,omitzero"`
	DetectCopies bool `toml:"detectCopies,omitempty"`
}

func (d *Diff) Overwrite(o *Diff) {
	if o.RenameLimit > 0 {
		d.RenameLimit = o.RenameLimit
	}
	if o.MinScore > 0 {
		d.MinScore = o.MinScore
	}
	d.DetectCopies = d.DetectCopies || o.DetectCopies
}

// Pack carries the sizing knobs the pack writer/reader consult (§6.2).
type Pack struct {
	WindowSize    int  `toml:"windowSize,omitzero"`
	CompressLevel int  `toml:"compressLevel,omitzero"`
	DeltaCacheRaw Size `toml:"deltaCacheSize,omitempty"`
}

func (p *Pack) Overwrite(o *Pack) {
	if o.WindowSize > 0 {
		p.WindowSize = o.WindowSize
	}
	if o.CompressLevel > 0 {
		p.CompressLevel = o.CompressLevel
	}
	if o.DeltaCacheRaw.Bytes > 0 {
		p.DeltaCacheRaw = o.DeltaCacheRaw
	}
}

// Config is the merged system/global/repo configuration.
type Config struct {
	Core Core `toml:"core,omitempty"`
	User User `toml:"user,omitempty"`
	Diff Diff `toml:"diff,omitempty"`
	Pack Pack `toml:"pack,omitempty"`
}

// Overwrite merges o's set fields over c's, repo-level config winning
// over global/system, per the teacher's layering discipline.
func (c *Config) Overwrite(o *Config) {
	c.Core.Overwrite(&o.Core)
	c.User.Overwrite(&o.User)
	c.Diff.Overwrite(&o.Diff)
	c.Pack.Overwrite(&o.Pack)
}

// Default returns the baseline configuration CORE falls back to when no
// config file sets a value: SHA-1 hashing, zlib compression, the stock
// git rename thresholds.
func Default() *Config {
	cfg := &Config{
		Core: Core{HashALGO: "sha1", CompressionALGO: "zlib"},
		Diff: Diff{RenameLimit: 1000, MinScore: 50 * 60000 / 100},
		Pack: Pack{WindowSize: 10, CompressLevel: 6},
	}
	cfg.Core.TrustExecutableBit.Set(true)
	return cfg
}

const globalConfigEnv = "GITCORE_CONFIG_GLOBAL"

func globalConfigPath() string {
	if p, ok := os.LookupEnv(globalConfigEnv); ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gitcoreconfig")
}

// LoadGlobal reads the user-wide config file, returning a zero Config
// (not an error) if none exists.
func LoadGlobal() (*Config, error) {
	var cfg Config
	p := globalConfigPath()
	if len(p) == 0 {
		return &cfg, nil
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(p, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads repoDir/config (TOML) and layers it over Default() and
// LoadGlobal(), in that priority order (repo highest).
func Load(repoDir string) (*Config, error) {
	cfg := Default()
	global, err := LoadGlobal()
	if err != nil {
		return nil, err
	}
	cfg.Overwrite(global)

	if len(repoDir) == 0 {
		return cfg, nil
	}
	var repo Config
	repoPath := filepath.Join(repoDir, "config")
	if _, err := os.Stat(repoPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(repoPath, &repo); err != nil {
		return nil, err
	}
	cfg.Overwrite(&repo)
	return cfg, nil
}
