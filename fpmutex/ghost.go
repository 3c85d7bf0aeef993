package fpmutex

import "context"

// GhostMutex backs the Ghost sync mode, and LOCAL nodes under Hard mode
// (Global Ghost uses SnapshotMutex instead). Read and
// Acquire always return the local payload — there is no remote traffic and
// no exclusion, because DISTANT replicas are refreshed out-of-band by
// data_sync.synchronize() rather than on demand.
//
// get/set close over the node's storage (graph.Node[T].Data/SetData); this
// keeps fpmutex free of any dependency on the graph package.
type GhostMutex[T any] struct {
	get func() T
	set func(T)
}

// NewGhostMutex returns a mutex over the given accessors.
func NewGhostMutex[T any](get func() T, set func(T)) *GhostMutex[T] {
	return &GhostMutex[T]{get: get, set: set}
}

func (m *GhostMutex[T]) Read(ctx context.Context) (T, error) {
	return m.get(), nil
}

func (m *GhostMutex[T]) ReleaseRead() {}

func (m *GhostMutex[T]) Acquire(ctx context.Context) (T, error) {
	return m.get(), nil
}

func (m *GhostMutex[T]) ReleaseAcquire(ctx context.Context, value T) error {
	m.set(value)
	return nil
}

func (m *GhostMutex[T]) Lock(ctx context.Context) error         { return nil }
func (m *GhostMutex[T]) Unlock(ctx context.Context) error       { return nil }
func (m *GhostMutex[T]) LockShared(ctx context.Context) error   { return nil }
func (m *GhostMutex[T]) UnlockShared(ctx context.Context) error { return nil }
func (m *GhostMutex[T]) Synchronize(ctx context.Context) error  { return nil }

// SnapshotMutex backs Global Ghost: read/acquire return the value captured
// at the last Synchronize call, even for a LOCAL node, so every rank sees
// "state at previous step" regardless of local execution order within the
// current step.
type SnapshotMutex[T any] struct {
	get      func() T
	set      func(T)
	snapshot T
	taken    bool
}

// NewSnapshotMutex returns a mutex over the given accessors, with an
// initial snapshot taken immediately so Read/Acquire never observe a
// zero value before the first Synchronize.
func NewSnapshotMutex[T any](get func() T, set func(T)) *SnapshotMutex[T] {
	m := &SnapshotMutex[T]{get: get, set: set}
	m.snapshot = get()
	m.taken = true
	return m
}

func (m *SnapshotMutex[T]) Read(ctx context.Context) (T, error) {
	return m.snapshot, nil
}

func (m *SnapshotMutex[T]) ReleaseRead() {}

func (m *SnapshotMutex[T]) Acquire(ctx context.Context) (T, error) {
	return m.snapshot, nil
}

func (m *SnapshotMutex[T]) ReleaseAcquire(ctx context.Context, value T) error {
	m.set(value)
	return nil
}

func (m *SnapshotMutex[T]) Lock(ctx context.Context) error         { return nil }
func (m *SnapshotMutex[T]) Unlock(ctx context.Context) error       { return nil }
func (m *SnapshotMutex[T]) LockShared(ctx context.Context) error   { return nil }
func (m *SnapshotMutex[T]) UnlockShared(ctx context.Context) error { return nil }

// Synchronize retakes the snapshot from current underlying storage. The
// data-sync pass that refreshes DISTANT payloads must run before this is
// called, so the new snapshot reflects the just-completed round.
func (m *SnapshotMutex[T]) Synchronize(ctx context.Context) error {
	m.snapshot = m.get()
	m.taken = true
	return nil
}
