// Package griddfserr defines the error kinds shared across GridDFS's
// coordinator, data node, and client, so that every layer (metadata store,
// HTTP binding, transport) can classify a failure the same way.
//
// Kinds are sentinel errors rather than a type hierarchy, in the spirit of
// torua's storage.ErrKeyNotFound: callers compare with errors.Is, and
// wrapping with fmt.Errorf("...: %w", ErrX) preserves the comparison.
package griddfserr

import "errors"

var (
	// ErrInvalidInput covers empty paths or principals, zero/oversize
	// uploads, and a block-hash count that does not match the file size.
	// Always surfaced synchronously.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists is returned when (principal, path) already names a
	// File at upload-plan time.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned by download-plan and delete when the named
	// path has no File, by storage confirmation for an unknown block, and
	// by abort for an unknown upload id. List returns an empty result
	// instead.
	ErrNotFound = errors.New("not found")

	// ErrNotDurable marks a download plan in which at least one block has
	// zero active locations. The plan is still returned to the caller with
	// the offending block's location list empty; client code converts this
	// to ErrUnavailableBlock once it actually fails to fetch that block.
	ErrNotDurable = errors.New("file is not durable")

	// ErrUnavailableBlock is raised by the client core when every known
	// location for a block has been exhausted without success.
	ErrUnavailableBlock = errors.New("block unavailable at all known locations")

	// ErrHashMismatch names the hash-mismatch kind. No code path returns
	// it: on write the data node reports the mismatch through
	// StoreOutcome.HashMatched, and on read the client discards the reply
	// and tries the next location.
	ErrHashMismatch = errors.New("content hash mismatch")

	// ErrInsufficientSpace and ErrDeclined are data-node admission outcomes.
	// They are not errors from the coordinator's point of view: they are
	// recorded as confirmations with that status and simply don't count
	// toward a session's completed_blocks.
	ErrInsufficientSpace = errors.New("insufficient storage space")
	ErrDeclined          = errors.New("declined by admission policy")

	// ErrTransportFailure covers an unreachable broker or a rejected
	// publish.
	ErrTransportFailure = errors.New("transport failure")

	// ErrFatal marks a metadata-store failure mid-transaction. The caller
	// must treat this as "no partial state committed".
	ErrFatal = errors.New("fatal metadata store error")

	// ErrSessionTerminal is returned when a caller attempts to transition
	// an upload session that has already reached a terminal state.
	ErrSessionTerminal = errors.New("upload session already terminal")

	// ErrNoCapacity is returned by create-upload-plan when fewer than one
	// active storage node is known to the coordinator.
	ErrNoCapacity = errors.New("no active storage capacity")
)
