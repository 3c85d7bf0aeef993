// Package localtransport implements comm.Communicator as an in-process,
// goroutine-per-rank rendezvous: every Send blocks until a matching Recv on
// the destination rank has consumed it. This gives the non-blocking
// synchronous send primitive (ISend/Test) its required "completes only
// once the peer has matched a receive" semantics for free, and lets the
// whole test suite exercise multi-rank scenarios inside a single test
// binary with no network, no serialization round-trip through an actual
// socket, and fully deterministic scheduling via sync.Cond.
package localtransport

import (
	"context"
	"fmt"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/internal/collective"
	"github.com/fpmas-go/fpmas/comm/internal/inbox"
)

// Cluster is the shared state for a group of local ranks. Construct one
// with NewCluster(size) and pull out each rank's Communicator with
// Cluster.Rank(i).
type Cluster struct {
	mailboxes []*inbox.Mailbox
}

// NewCluster builds a cluster of size in-process ranks.
func NewCluster(size int32) *Cluster {
	c := &Cluster{mailboxes: make([]*inbox.Mailbox, size)}
	for i := range c.mailboxes {
		c.mailboxes[i] = inbox.New()
	}
	return c
}

// Size returns the number of ranks in the cluster.
func (c *Cluster) Size() int32 { return int32(len(c.mailboxes)) }

// Rank returns the Communicator for a given rank within the cluster.
func (c *Cluster) Rank(rank int32) comm.Communicator {
	return &communicator{cluster: c, rank: rank}
}

type communicator struct {
	cluster *Cluster
	rank    int32
}

func (t *communicator) Rank() int32 { return t.rank }
func (t *communicator) Size() int32 { return t.cluster.Size() }

func (t *communicator) mailbox(rank int32) (*inbox.Mailbox, error) {
	if rank < 0 || int(rank) >= len(t.cluster.mailboxes) {
		return nil, fmt.Errorf("%w: rank %d out of range [0,%d)", errOutOfRange, rank, len(t.cluster.mailboxes))
	}
	return t.cluster.mailboxes[rank], nil
}

func (t *communicator) Send(ctx context.Context, dest int32, tag comm.Tag, data []byte) error {
	req, err := t.ISend(ctx, dest, tag, data)
	if err != nil {
		return err
	}
	for {
		done, err := req.Test()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

type request struct {
	done chan struct{}
}

func (r *request) Test() (bool, error) {
	select {
	case <-r.done:
		return true, nil
	default:
		return false, nil
	}
}

func (t *communicator) ISend(ctx context.Context, dest int32, tag comm.Tag, data []byte) (comm.Request, error) {
	mb, err := t.mailbox(dest)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	mb.Post(&inbox.Envelope{From: t.rank, Tag: tag, Data: data, Done: done})
	return &request{done: done}, nil
}

func (t *communicator) Recv(ctx context.Context, src int32, tag comm.Tag) ([]byte, error) {
	mb, err := t.mailbox(t.rank)
	if err != nil {
		return nil, err
	}
	return mb.Recv(ctx, src, tag)
}

func (t *communicator) IProbe(src int32, tag comm.Tag) (comm.Status, bool, error) {
	mb, err := t.mailbox(t.rank)
	if err != nil {
		return comm.Status{}, false, err
	}
	status, ok := mb.Peek(src, tag)
	return status, ok, nil
}

func (t *communicator) AllToAll(ctx context.Context, tag comm.Tag, sends map[int32][]byte) (map[int32][]byte, error) {
	return collective.AllToAll(ctx, t, tag, sends)
}

func (t *communicator) Gather(ctx context.Context, tag comm.Tag, root int32, data []byte) (map[int32][]byte, error) {
	return collective.Gather(ctx, t, tag, root, data)
}

func (t *communicator) AllGather(ctx context.Context, tag comm.Tag, data []byte) (map[int32][]byte, error) {
	return collective.AllGather(ctx, t, tag, data)
}

func (t *communicator) Barrier(ctx context.Context, epoch comm.Epoch) error {
	return collective.Barrier(ctx, t, epoch)
}
