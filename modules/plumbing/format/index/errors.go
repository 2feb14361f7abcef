package index

import "errors"

var (
	// ErrUnsupportedVersion is returned by Decode when the index version
	// falls outside spec §6.4's named range (2 or 3).
	ErrUnsupportedVersion = errors.New("index: unsupported version")
	// ErrEntryNotFound is returned by Index.Entry/Remove for a missing path.
	ErrEntryNotFound = errors.New("index: entry not found")
	// ErrMalformedSignature is returned when the header magic isn't "DIRC".
	ErrMalformedSignature = errors.New("index: malformed signature")
	// ErrInvalidChecksum is returned when the trailing SHA does not match
	// the streamed content hash.
	ErrInvalidChecksum = errors.New("index: invalid checksum")
	// ErrUnknownExtension is returned for a mandatory (capital-letter)
	// extension signature this package does not recognize.
	ErrUnknownExtension = errors.New("index: unknown mandatory extension")
)
