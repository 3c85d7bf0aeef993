// Package balance implements the load-balance driver (C10): given a
// pluggable partitioner, it repartitions a distributed graph while
// keeping the partitioner's view of the graph consistent and refreshing
// newly imported replicas.
package balance

import (
	"context"

	"github.com/fpmas-go/fpmas/dgraph"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

// Partitioner computes a new assignment of node ids to owning ranks.
// fixed, when non-nil, names ids the partitioner must not relocate (e.g.
// pinned seed nodes); a Partitioner is free to ignore it if it has no
// such concept.
type Partitioner[T any] func(nodes []*graph.Node[T], fixed map[fpid.ID]struct{}) map[fpid.ID]int32

// Driver runs repartition rounds against a DistributedGraph.
type Driver[T any] struct {
	dg *dgraph.DistributedGraph[T]
}

// New returns a load-balance driver over dg.
func New[T any](dg *dgraph.DistributedGraph[T]) *Driver[T] {
	return &Driver[T]{dg: dg}
}

// Rebalance runs one full repartition round (spec §4.10): the sync
// linker drains first so partitioner sees a causally consistent graph,
// then distribute(partition) moves nodes and their relevant edges, then
// the freshly imported DISTANT replicas get a partial data sync so their
// payloads are not left at the zero value.
func (d *Driver[T]) Rebalance(ctx context.Context, partitioner Partitioner[T], fixed map[fpid.ID]struct{}) error {
	if err := d.dg.SynchronizeNodes(ctx, nil, true); err != nil {
		return err
	}

	partition := partitioner(d.dg.Nodes(), fixed)

	before := make(map[fpid.ID]struct{}, len(d.dg.Nodes()))
	for _, id := range d.dg.DistantIDs() {
		before[id] = struct{}{}
	}

	if err := d.dg.Distribute(ctx, partition); err != nil {
		return err
	}

	var fresh []fpid.ID
	for _, id := range d.dg.DistantIDs() {
		if _, ok := before[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return d.dg.SynchronizeNodes(ctx, fresh, false)
}
