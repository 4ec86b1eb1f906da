package shachain

import "errors"

var (
	// ErrIndexSequence is returned when a hash is added at an index other
	// than zero for an empty store, or one past the highest index stored.
	ErrIndexSequence = errors.New("shachain: hash added out of sequence")

	// ErrHashMismatch is returned when a new hash fails to reproduce an
	// element already held by the store, meaning it wasn't generated from
	// the same seed. Detection is best effort: only elements derivable from
	// the new index can be checked.
	ErrHashMismatch = errors.New("shachain: hash isn't derivable from " +
		"previous ones")

	// ErrUnknownIndex is returned when the hash for an index can't be
	// reconstructed from the elements in the store.
	ErrUnknownIndex = errors.New("shachain: unable to derive hash")

	// ErrStoreFull is returned when an insertion would need more elements
	// than an index has bits. This can't happen for hashes added in
	// sequence.
	ErrStoreFull = errors.New("shachain: no free bucket for element")

	// ErrCorruptStore is returned when a serialized store violates the
	// invariants a store built through AddHash always satisfies.
	ErrCorruptStore = errors.New("shachain: corrupt store encoding")
)
