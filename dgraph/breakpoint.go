package dgraph

import (
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

// NodeSnapshot is one node's full state as persisted in a breakpoint:
// enough to reconstruct it exactly, LOCAL or DISTANT, without going
// through BuildNode/ImportNode's id allocation.
type NodeSnapshot[T any] struct {
	ID        fpid.ID
	Payload   T
	Weight    float64
	Location  graph.Location
	OwnerRank int32
}

// EdgeSnapshot is one edge's full state as persisted in a breakpoint.
// Location is never stored: it is always re-derived from the endpoints
// (I4) once both are restored.
type EdgeSnapshot struct {
	ID       fpid.ID
	Layer    int
	Weight   float64
	SourceID fpid.ID
	TargetID fpid.ID
}

// Snapshot captures this rank's entire local state — per spec §9's
// "persisted state" definition: the full-codec dump of the local graph
// plus its id counters and the location manager's managed map.
func (dg *DistributedGraph[T]) Snapshot() (nodes []NodeSnapshot[T], edges []EdgeSnapshot, nextNodeSeq, nextEdgeSeq uint64, managed map[fpid.ID]int32) {
	for _, n := range dg.g.Nodes() {
		nodes = append(nodes, NodeSnapshot[T]{
			ID:        n.ID,
			Payload:   n.Data(),
			Weight:    n.Weight,
			Location:  n.Location(),
			OwnerRank: n.Rank(),
		})
	}
	for _, e := range dg.g.Edges() {
		edges = append(edges, EdgeSnapshot{
			ID:       e.ID,
			Layer:    e.Layer,
			Weight:   e.Weight,
			SourceID: e.Source.ID,
			TargetID: e.Target.ID,
		})
	}
	return nodes, edges, dg.nodeAlloc.Peek(), dg.edgeAlloc.Peek(), dg.loc.ManagedSnapshot()
}

// Restore rebuilds this rank's entire local state from a breakpoint
// previously captured by Snapshot, on a freshly constructed (empty)
// graph of the same rank. Per spec §9, the caller must follow Restore
// with a Synchronize call to bring DISTANT replicas' payloads and the
// rest of the cluster's view back in sync.
func (dg *DistributedGraph[T]) Restore(nodes []NodeSnapshot[T], edges []EdgeSnapshot, nextNodeSeq, nextEdgeSeq uint64, managed map[fpid.ID]int32) {
	for _, rec := range nodes {
		n := graph.NewNode(rec.ID, rec.Payload, rec.Weight, rec.Location, rec.OwnerRank)
		dg.g.InsertNode(n)
	}
	for _, rec := range edges {
		src, _ := dg.g.GetNode(rec.SourceID)
		tgt, _ := dg.g.GetNode(rec.TargetID)
		e := graph.NewEdge(rec.ID, rec.Layer, rec.Weight, src, tgt)
		dg.g.InsertEdge(e)
	}

	dg.loc.Restore(managed)
	dg.nodeAlloc.Restore(nextNodeSeq)
	dg.edgeAlloc.Restore(nextEdgeSeq)

	for _, n := range dg.g.Nodes() {
		dg.mutexes[n.ID] = dg.newMutex(n)
	}
}
