package persistq

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is against these; operations that fail
// wrap one of them with context via fmt.Errorf("%w: ...", ...).
var (
	// ErrIllegalArgument is returned for malformed construction parameters
	// or bad method arguments.
	ErrIllegalArgument = errors.New("persistq: illegal argument")

	// ErrIllegalState is returned for file corruption, a deserialization
	// failure, a header that disagrees with the constructor parameters, or
	// any operation on a closed queue.
	ErrIllegalState = errors.New("persistq: illegal state")

	// ErrUnsupported is returned by operations explicitly disclaimed by
	// this queue (Contains's siblings, iterator Remove, ...).
	ErrUnsupported = errors.New("persistq: unsupported operation")

	// ErrNoSuchElement is returned by Element/Remove when the queue is
	// empty.
	ErrNoSuchElement = errors.New("persistq: no such element")

	// ErrConcurrentModification is returned by an Iterator's Next when the
	// queue's head or tail moved since the iterator was constructed.
	ErrConcurrentModification = errors.New("persistq: concurrent modification")

	// ErrInterrupted is returned when a blocking or timed wait is
	// cancelled via context.
	ErrInterrupted = errors.New("persistq: interrupted")

	// ErrCapacity is returned by Add when Offer would have returned false.
	ErrCapacity = errors.New("persistq: capacity exhausted")
)

func wrapIllegalState(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrIllegalState, op, cause)
}

func wrapIllegalArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrIllegalArgument, msg)
}
