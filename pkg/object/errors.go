package object

import "errors"

// Decode failures are reported as wrapped sentinel errors so callers
// can classify them with errors.Is without losing the artifact context
// carried in the message.
var (
	// ErrNotFound means the id is absent from every source. Normal
	// outcome of a lookup, not a corruption signal.
	ErrNotFound = errors.New("object not found")

	// ErrCorrupt means a header or structure violates format rules.
	ErrCorrupt = errors.New("corrupt")

	// ErrSizeMismatch means decoded content length disagrees with the
	// size declared by a loose header, pack entry header, or delta.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrIntegrityMismatch means content re-hashing disagrees with the
	// id the object is stored under. Recoverable: the decoded object
	// is still returned alongside this error.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrUnknownKind means a valid-looking header names a kind this
	// tool does not recognize.
	ErrUnknownKind = errors.New("unknown object kind")

	ErrBadSignature       = errors.New("bad signature")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrBadFanout          = errors.New("fan-out table not monotonic")
	ErrTruncatedPack      = errors.New("truncated pack")

	ErrDeltaChainTooDeep = errors.New("delta chain too deep")
	ErrDeltaCycle        = errors.New("delta cycle")

	// ErrNotRepository means the given root has no object database.
	ErrNotRepository = errors.New("not a git repository")
)
