package hard

import (
	"context"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/fpmutex"
	"github.com/fpmas-go/fpmas/syncmode"
)

type mutexFactory[T any] struct {
	rank           int32
	c              comm.Communicator
	epoch          func() comm.Epoch
	pump           fpmutex.Pump
	sent, received *uint64
}

// New builds a mutex for id. A LOCAL node's own rank never needs the
// network to read or write its own payload, so it gets a direct
// get/set-backed mutex; the Server handles remote requests against it
// independently. A DISTANT node gets a HardMutex that contacts owner,
// tallying into the factory's shared in-flight counters so the
// termination detector sees outstanding client requests.
func (f mutexFactory[T]) New(id fpid.ID, owner int32, local bool, get func() T, set func(T)) fpmutex.Mutex[T] {
	if local {
		return fpmutex.NewGhostMutex(get, set)
	}
	return fpmutex.NewHardMutex[T](id, owner, f.c, f.epoch, f.pump, f.sent, f.received)
}

// Mode bundles a fully wired Hard syncmode.Mode together with the mutex
// server and link server DistributedGraph must pump inside every blocking
// wait (spec §5), exposed as the MutexServer and Linker fields for that
// purpose.
type Mode[T any] struct {
	syncmode.Mode[T]
	MutexServer *fpmutex.Server[T]
	Linker      *Linker[T]
}

// New wires a complete Hard sync mode: a mutex server over this rank's
// LOCAL nodes, a streaming link server, and a mutex factory whose client
// handles interleave pumping both while blocked, as required to avoid the
// two-server deadlock described in spec §5.
func New[T any](rank int32, c comm.Communicator, epoch func() comm.Epoch, port syncmode.GraphPort[T], localGet func(fpid.ID) (T, bool), localSet func(fpid.ID, T)) *Mode[T] {
	server := fpmutex.NewServer[T](rank, c, epoch, localGet, localSet)
	var clientSent, clientReceived uint64
	clientCounters := fpmutex.ClientCounters{Sent: &clientSent, Received: &clientReceived}
	linker := NewLinker[T](rank, c, port, epoch, server, clientCounters)

	pump := func(ctx context.Context) error {
		if _, err := server.HandlePending(ctx); err != nil {
			return err
		}
		if _, err := linker.HandlePending(ctx); err != nil {
			return err
		}
		return nil
	}

	return &Mode[T]{
		Mode: syncmode.Mode[T]{
			DataSync:   DataSync[T]{},
			SyncLinker: linker,
			MutexFactory: mutexFactory[T]{
				rank: rank, c: c, epoch: epoch, pump: pump,
				sent: &clientSent, received: &clientReceived,
			},
		},
		MutexServer: server,
		Linker:      linker,
	}
}
