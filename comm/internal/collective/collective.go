// Package collective implements the bulk operations (AllToAll, Gather,
// AllGather, Barrier) once, in terms of a transport's point-to-point
// Send/Recv/Rank/Size primitives, so every comm.Communicator
// implementation gets identical collective semantics without repeating
// the errgroup fan-out logic.
package collective

import (
	"context"
	"sync"

	"github.com/fpmas-go/fpmas/comm"
	"golang.org/x/sync/errgroup"
)

// PointToPoint is the subset of comm.Communicator the collectives in this
// package are built from.
type PointToPoint interface {
	Rank() int32
	Size() int32
	Send(ctx context.Context, dest int32, tag comm.Tag, data []byte) error
	Recv(ctx context.Context, src int32, tag comm.Tag) ([]byte, error)
}

// AllToAll exchanges one byte slice per destination rank over t. Every
// rank must call AllToAll concurrently with the same tag for this to
// complete: each rank both sends to, and receives from, every other rank,
// so no rank can deadlock waiting on one that never participates.
func AllToAll(ctx context.Context, t PointToPoint, tag comm.Tag, sends map[int32][]byte) (map[int32][]byte, error) {
	g, gctx := errgroup.WithContext(ctx)
	n := t.Size()
	r := t.Rank()

	for dest := int32(0); dest < n; dest++ {
		if dest == r {
			continue
		}
		dest := dest
		payload := sends[dest]
		g.Go(func() error {
			return t.Send(gctx, dest, tag, payload)
		})
	}

	result := make(map[int32][]byte)
	var mu sync.Mutex
	for src := int32(0); src < n; src++ {
		if src == r {
			continue
		}
		src := src
		g.Go(func() error {
			data, err := t.Recv(gctx, src, tag)
			if err != nil {
				return err
			}
			if len(data) > 0 {
				mu.Lock()
				result[src] = data
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Gather collects one byte slice from every rank to root.
func Gather(ctx context.Context, t PointToPoint, tag comm.Tag, root int32, data []byte) (map[int32][]byte, error) {
	if t.Rank() != root {
		if err := t.Send(ctx, root, tag, data); err != nil {
			return nil, err
		}
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	result := make(map[int32][]byte)
	var mu sync.Mutex
	if len(data) > 0 {
		result[root] = data
	}
	for src := int32(0); src < t.Size(); src++ {
		if src == root {
			continue
		}
		src := src
		g.Go(func() error {
			d, err := t.Recv(gctx, src, tag)
			if err != nil {
				return err
			}
			mu.Lock()
			result[src] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// AllGather is Gather plus a broadcast of the full result to every rank,
// implemented directly as an AllToAll where every rank sends the same
// payload to every other rank.
func AllGather(ctx context.Context, t PointToPoint, tag comm.Tag, data []byte) (map[int32][]byte, error) {
	sends := make(map[int32][]byte, t.Size())
	for dest := int32(0); dest < t.Size(); dest++ {
		if dest != t.Rank() {
			sends[dest] = data
		}
	}
	result, err := AllToAll(ctx, t, tag, sends)
	if err != nil {
		return nil, err
	}
	result[t.Rank()] = data
	return result, nil
}

// Barrier blocks until every rank has reached it for the given epoch.
func Barrier(ctx context.Context, t PointToPoint, epoch comm.Epoch) error {
	tag := comm.Tag{Epoch: epoch, Kind: comm.KindBarrier}
	_, err := AllGather(ctx, t, tag, nil)
	return err
}
