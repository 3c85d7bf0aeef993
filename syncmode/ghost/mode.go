package ghost

import (
	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/fpmutex"
	"github.com/fpmas-go/fpmas/location"
	"github.com/fpmas-go/fpmas/syncmode"
)

type mutexFactory[T any] struct {
	global bool
}

// New ignores id/owner/local: every Ghost-family mutex, LOCAL or DISTANT,
// reads and writes the same in-process storage — there is no remote
// traffic in this mode at all, by design.
func (f mutexFactory[T]) New(id fpid.ID, owner int32, local bool, get func() T, set func(T)) fpmutex.Mutex[T] {
	if f.global {
		return fpmutex.NewSnapshotMutex(get, set)
	}
	return fpmutex.NewGhostMutex(get, set)
}

// New returns the Ghost sync mode: DISTANT payloads are stale replicas
// refreshed only by an explicit data-sync round, and read/acquire on any
// node (LOCAL or DISTANT) return the live local payload. epoch reports
// the current barrier epoch at call time.
func New[T any](rank int32, c comm.Communicator, loc *location.Manager, port syncmode.GraphPort[T], epoch func() comm.Epoch) syncmode.Mode[T] {
	return syncmode.Mode[T]{
		DataSync:     NewDataSync[T](rank, c, loc, port, epoch),
		SyncLinker:   NewLinker[T](c, port, epoch),
		MutexFactory: mutexFactory[T]{global: false},
	}
}

// NewGlobal returns the Global Ghost sync mode: identical wire behavior to
// Ghost, but read/acquire always return the snapshot captured at the last
// Synchronize call — even for LOCAL nodes — giving every rank a
// deterministic "state at previous step" view regardless of local
// execution order within the current step.
func NewGlobal[T any](rank int32, c comm.Communicator, loc *location.Manager, port syncmode.GraphPort[T], epoch func() comm.Epoch) syncmode.Mode[T] {
	return syncmode.Mode[T]{
		DataSync:     NewDataSync[T](rank, c, loc, port, epoch),
		SyncLinker:   NewLinker[T](c, port, epoch),
		MutexFactory: mutexFactory[T]{global: true},
	}
}
