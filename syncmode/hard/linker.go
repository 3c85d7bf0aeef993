// Package hard implements the Hard sync mode (C7): payloads are
// authoritative, read/acquire on a DISTANT node contact the owner and
// wait, and link/unlink/remove traffic streams as individual messages
// drained by the termination detector rather than batched into rounds.
package hard

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync/atomic"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/syncmode"
	"github.com/fpmas-go/fpmas/termination"
)

func encodeEdge(e fpid.EdgeLight) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("%w: encode edge: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (fpid.EdgeLight, error) {
	var e fpid.EdgeLight
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return e, fmt.Errorf("%w: decode edge: %v", fpid.ErrCodecFailure, err)
	}
	return e, nil
}

func encodeID(id fpid.ID) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(id); err != nil {
		return nil, fmt.Errorf("%w: encode id: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeID(data []byte) (fpid.ID, error) {
	var id fpid.ID
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&id); err != nil {
		return id, fmt.Errorf("%w: decode id: %v", fpid.ErrCodecFailure, err)
	}
	return id, nil
}

// Linker streams every link/unlink/node-removal as soon as it is queued,
// rather than batching it into an all-to-all round. It doubles as a
// termination.Server so the detector can drain its incoming traffic and
// fold its counters into the cluster-wide quiescence check.
type Linker[T any] struct {
	rank  int32
	c     comm.Communicator
	port  syncmode.GraphPort[T]
	epoch func() comm.Epoch

	detector     *termination.Detector
	extraServers []termination.Server

	sent, received uint64
	err            error
}

// NewLinker returns a Hard sync linker. extraServers (the mutex server and
// the client-side in-flight counters) are pumped/tallied alongside this
// linker by SynchronizeLinks' termination wait, per the interleaving rule
// in spec §5.
func NewLinker[T any](rank int32, c comm.Communicator, port syncmode.GraphPort[T], epoch func() comm.Epoch, extraServers ...termination.Server) *Linker[T] {
	return &Linker[T]{
		rank:         rank,
		c:            c,
		port:         port,
		epoch:        epoch,
		detector:     termination.New(rank),
		extraServers: extraServers,
	}
}

func (l *Linker[T]) send(kind comm.Kind, dest int32, body []byte) {
	if l.err != nil {
		return
	}
	tag := comm.Tag{Epoch: l.epoch(), Kind: kind}
	if err := l.c.Send(context.Background(), dest, tag, body); err != nil {
		l.err = fmt.Errorf("hard: stream %v to rank %d: %w", kind, dest, err)
		return
	}
	atomic.AddUint64(&l.sent, 1)
}

func (l *Linker[T]) QueueLink(edge fpid.EdgeLight, remoteOwner int32) {
	body, err := encodeEdge(edge)
	if err != nil {
		l.err = err
		return
	}
	l.send(comm.KindLink, remoteOwner, body)
}

func (l *Linker[T]) QueueUnlink(id fpid.ID, remoteOwner int32) {
	body, err := encodeID(id)
	if err != nil {
		l.err = err
		return
	}
	l.send(comm.KindUnlink, remoteOwner, body)
}

func (l *Linker[T]) QueueNodeRemoval(id fpid.ID, remoteOwner int32) {
	body, err := encodeID(id)
	if err != nil {
		l.err = err
		return
	}
	l.send(comm.KindRemoveNode, remoteOwner, body)
}

// SynchronizeLinks drains every in-flight LINK/UNLINK/REMOVE_NODE message
// cluster-wide via the termination detector, which pumps both this linker
// and the mutex server until traffic quiesces.
func (l *Linker[T]) SynchronizeLinks(ctx context.Context) error {
	if l.err != nil {
		err := l.err
		l.err = nil
		return err
	}
	servers := append([]termination.Server{l}, l.extraServers...)
	// The detector's returned epoch is always epoch().Flip(): the same
	// deterministic toggle DistributedGraph.FlipEpoch applies once per
	// round. We don't need to feed it back here; discarding it just means
	// both sides independently compute the same next epoch.
	_, err := l.detector.Terminate(ctx, l.c, l.epoch(), servers)
	return err
}

// HandlePending services one waiting LINK/UNLINK/REMOVE_NODE message from
// any peer, applying it through the GraphPort.
func (l *Linker[T]) HandlePending(ctx context.Context) (bool, error) {
	tag := comm.Tag{Epoch: l.epoch(), Kind: 0}
	kinds := []comm.Kind{comm.KindLink, comm.KindUnlink, comm.KindRemoveNode}

	for src := int32(0); src < l.c.Size(); src++ {
		if src == l.rank {
			continue
		}
		for _, kind := range kinds {
			tag.Kind = kind
			_, ok, err := l.c.IProbe(src, tag)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			data, err := l.c.Recv(ctx, src, tag)
			if err != nil {
				return false, err
			}
			atomic.AddUint64(&l.received, 1)
			if err := l.apply(kind, data); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (l *Linker[T]) apply(kind comm.Kind, data []byte) error {
	switch kind {
	case comm.KindLink:
		edge, err := decodeEdge(data)
		if err != nil {
			return err
		}
		return l.port.ImportEdge(edge)
	case comm.KindUnlink:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		l.port.EraseEdgeByID(id)
	case comm.KindRemoveNode:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		l.port.UnlinkIncident(id)
		l.port.EraseLocalNode(id)
	}
	return nil
}

// Counters reports cumulative link-traffic messages, for the termination
// detector.
func (l *Linker[T]) Counters() (sent, received uint64) {
	return atomic.LoadUint64(&l.sent), atomic.LoadUint64(&l.received)
}
