// Package fpmutex implements the per-node mutex discipline (C6). A mutex is
// the sole gatekeeper for a node's payload: every read or write, local or
// remote, goes through it. Behavior varies by sync mode (ghost modes never
// leave the process; hard mode talks to the owning rank's mutex server).
package fpmutex

import "context"

// Mutex is the per-node handle user code and the sync layer acquire
// payload access through. T is the node's opaque payload type.
type Mutex[T any] interface {
	// Read returns the payload for a shared, read-only access.
	// ReleaseRead must be called exactly once per successful Read.
	Read(ctx context.Context) (T, error)
	ReleaseRead()

	// Acquire returns the payload for an exclusive, read-write access.
	// The caller must eventually call ReleaseAcquire with the (possibly
	// mutated) value to release the exclusion and, under Hard mode, ship
	// the update back to the owner.
	Acquire(ctx context.Context) (T, error)
	ReleaseAcquire(ctx context.Context, value T) error

	// Lock/Unlock and LockShared/UnlockShared implement coarse-grained
	// exclusion without transferring the payload, for callers that only
	// need to serialize against concurrent acquires elsewhere (e.g. the
	// distributed move algorithm reserving a cell before writing several
	// related edges).
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	LockShared(ctx context.Context) error
	UnlockShared(ctx context.Context) error

	// Synchronize is called on every node's mutex at the end of a
	// barrier round. SnapshotMutex retakes its snapshot there; GhostMutex
	// and HardMutex implement it as a no-op.
	Synchronize(ctx context.Context) error
}
