// Package filemode implements the file modes used by tree objects, mirroring
// the tiny permission set git's tree entries actually use.
package filemode

import (
	"fmt"
	"os"
)

// FileMode represents the mode of a tree entry, as stored in the low bits of
// a git tree object's per-entry mode field.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0040000
	Regular    FileMode = 0100644
	Deprecated FileMode = 0100664
	Executable FileMode = 0100755
	Symlink    FileMode = 0120000
	Submodule  FileMode = 0160000

	// Fragments is a flag bit outside git's tree-entry mode set. A mode
	// carrying it is reported by IsMalformed and rejected by ToOSFileMode.
	Fragments FileMode = 0400000
)

// New parses an octal string representation (as it appears in a tree
// object's ASCII mode field) into a FileMode.
func New(s string) (FileMode, error) {
	var n uint32
	if _, err := fmt.Sscanf(s, "%o", &n); err != nil {
		return Empty, err
	}
	return FileMode(n), nil
}

func (m FileMode) String() string {
	return fmt.Sprintf("%o", uint32(m))
}

// IsMalformed reports modes outside the set the data model permits (§3):
// regular 0644/0755, symlink, directory, submodule-link. 0664 is tolerated
// only by callers that opt into lenient parsing.
func (m FileMode) IsMalformed() bool {
	switch m {
	case Dir, Regular, Executable, Symlink, Submodule:
		return false
	default:
		return true
	}
}

func (m FileMode) IsRegular() bool {
	return m == Regular || m == Executable || m == Deprecated
}

func (m FileMode) IsExecutable() bool {
	return m == Executable
}

func (m FileMode) IsDir() bool {
	return m == Dir
}

func (m FileMode) IsSymlink() bool {
	return m == Symlink
}

func (m FileMode) IsSubmodule() bool {
	return m == Submodule
}

// ToOSFileMode converts m to the nearest equivalent os.FileMode, for callers
// that materialize a working tree entry on disk.
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch m {
	case Dir:
		return os.ModeDir | 0755, nil
	case Symlink:
		return os.ModeSymlink | 0777, nil
	case Regular, Deprecated:
		return 0644, nil
	case Executable:
		return 0755, nil
	case Submodule:
		return os.ModeDir | os.ModeIrregular, nil
	}
	return 0, fmt.Errorf("filemode: malformed file mode %o", uint32(m))
}

// NewFromOSFileMode derives the git tree mode for a working-copy file,
// honoring the owner-executable bit only (spec §4.5's trust_executable_bit
// rule is applied by the caller, not here).
func NewFromOSFileMode(fi os.FileMode) (FileMode, error) {
	switch {
	case fi.IsDir():
		return Dir, nil
	case fi&os.ModeSymlink != 0:
		return Symlink, nil
	case fi&os.ModeIrregular != 0:
		return Submodule, nil
	case fi.IsRegular():
		if fi.Perm()&0100 != 0 {
			return Executable, nil
		}
		return Regular, nil
	}
	return Empty, fmt.Errorf("filemode: unsupported os.FileMode %v", fi)
}

func (m FileMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *FileMode) UnmarshalText(text []byte) error {
	v, err := New(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
