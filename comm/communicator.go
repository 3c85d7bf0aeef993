// Package comm defines the Communicator contract (C1): point-to-point and
// collective messaging between ranks, with a non-blocking synchronous send
// primitive that the termination detector relies on to know when request
// traffic has drained.
package comm

import "context"

// Kind distinguishes message purposes sharing the same epoch, so a
// transport can dispatch without decoding the payload.
type Kind uint8

const (
	KindRead Kind = iota
	KindReadResponse
	KindAcquire
	KindAcquireResponse
	KindReleaseAcquire
	KindLock
	KindLockResponse
	KindLockShared
	KindLockSharedResponse
	KindUnlock
	KindUnlockShared
	KindLink
	KindUnlink
	KindRemoveNode
	KindBulk    // all-to-all / gather collectives
	KindBarrier // Barrier's own all-gather, kept distinct from KindBulk so a
	// barrier can never alias an application-level collective in the same epoch
	KindUser // reserved for higher-level traffic (DMA, breakpoints, ...)
)

// Epoch alternates per synchronization round so a message delayed from a
// previous barrier can never be mistaken for a current one.
type Epoch uint8

const (
	EpochEven Epoch = iota
	EpochOdd
)

// Flip returns the other epoch.
func (e Epoch) Flip() Epoch {
	if e == EpochEven {
		return EpochOdd
	}
	return EpochEven
}

// Tag is the full message tag: (epoch, kind).
type Tag struct {
	Epoch Epoch
	Kind  Kind
}

// Status describes a matched message that IProbe found waiting, without
// consuming it.
type Status struct {
	Source int32
	Tag    Tag
	Size   int
}

// Request is a handle to a pending non-blocking send. Test reports whether
// the peer has matched it with a receive; once true the send has
// completed and the request is spent.
type Request interface {
	Test() (bool, error)
}

// Communicator is the point-to-point and collective messaging contract
// every sync mode and the location manager are built on. All methods may
// suspend the calling goroutine (or, in a real multi-process deployment,
// block the OS thread) — these are the only suspension points in the
// core's otherwise single-threaded-per-rank execution model.
type Communicator interface {
	// Rank returns this process's rank.
	Rank() int32
	// Size returns the number of ranks in the communicator.
	Size() int32

	// Send blocks until data has been handed to the transport for
	// delivery to dest. It does not imply the peer has received it.
	Send(ctx context.Context, dest int32, tag Tag, data []byte) error
	// Recv blocks until a message matching tag from src has arrived and
	// returns its payload.
	Recv(ctx context.Context, src int32, tag Tag) ([]byte, error)

	// ISend posts a non-blocking synchronous send: the returned Request's
	// Test only reports true once the peer has matched it with a Recv (or
	// an IProbe+consume). This is the primitive the termination detector
	// needs: a request that is still pending means there is still
	// in-flight traffic.
	ISend(ctx context.Context, dest int32, tag Tag, data []byte) (Request, error)

	// IProbe reports whether a message matching tag from src is waiting,
	// without consuming it.
	IProbe(src int32, tag Tag) (Status, bool, error)

	// AllToAll exchanges one byte slice per destination rank: sends[r] is
	// delivered to rank r, and the return value holds, for each rank r
	// that sent to this one, the bytes rank r addressed to us. Ranks that
	// sent nothing are simply absent from both maps. tag distinguishes
	// concurrent collectives (e.g. a ghost link exchange tagged KindLink
	// from a bulk data exchange tagged KindBulk) from aliasing each other.
	AllToAll(ctx context.Context, tag Tag, sends map[int32][]byte) (map[int32][]byte, error)

	// Gather collects one byte slice from every rank to root. Non-root
	// ranks get back nil.
	Gather(ctx context.Context, tag Tag, root int32, data []byte) (map[int32][]byte, error)

	// AllGather is Gather followed by a broadcast of the full result to
	// every rank.
	AllGather(ctx context.Context, tag Tag, data []byte) (map[int32][]byte, error)

	// Barrier blocks until every rank has called Barrier for the given
	// epoch.
	Barrier(ctx context.Context, epoch Epoch) error
}
