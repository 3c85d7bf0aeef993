// Package move implements the Distributed Move Algorithm (C9): a
// fixed-point graph rewrite that derives MOVE, PERCEIVE, and PERCEPTION
// edges for a set of spatial agents over a cell network, from each
// agent's mobility and perception ranges. It is a client of package
// dgraph that uses only public graph operations — DMA has no special
// access to the core.
package move

import (
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

// Layer ids DMA reads and writes. CellSuccessor is the only layer domain
// code is expected to populate itself, before running any Step; every
// other layer is owned by the algorithm.
const (
	LayerCellSuccessor = iota
	LayerLocation
	LayerMove
	LayerPerceive
	LayerPerception
	LayerNewLocation
	LayerNewMove
	LayerNewPerceive
)

// Agent is the capability a node payload must expose to be treated as a
// spatial agent rather than a cell. A payload that does not implement
// Agent is assumed to be a cell; DMA never needs a matching Cell
// interface because cell adjacency lives entirely in the graph, not the
// payload.
type Agent interface {
	MobilityRange() int
	PerceptionRange() int
}

// agentOf type-asserts n's payload to Agent, the only way this package
// distinguishes agents from cells.
func agentOf[T any](n *graph.Node[T]) (Agent, bool) {
	a, ok := any(n.Data()).(Agent)
	return a, ok
}

// hasEdgeTo reports whether n already carries an outgoing edge to target
// on layer, returning it if so.
func hasEdgeTo[T any](n *graph.Node[T], layer int, target *graph.Node[T]) (*graph.Edge[T], bool) {
	for _, e := range n.Out(layer) {
		if e.Target.ID == target.ID {
			return e, true
		}
	}
	return nil, false
}

// MoveTo requests that agent relocate to target. It is legal for target
// to equal the agent's current cell. target must be within the agent's
// current MOVE set (the fixed point computed by the most recent Step) or
// ErrOutOfMobility is returned, surfaced to the caller rather than
// swallowed by the algorithm.
func MoveTo[T any](g graphPort[T], agent, target *graph.Node[T]) error {
	if _, ok := hasEdgeTo(agent, LayerMove, target); !ok {
		return fpid.ErrOutOfMobility
	}
	if _, ok := hasEdgeTo(agent, LayerNewLocation, target); ok {
		return nil
	}
	g.Link(agent, target, LayerNewLocation, 0)
	return nil
}

// graphPort is the narrow slice of DistributedGraph's public surface
// MoveTo needs: link/unlink and node iteration, declared here so MoveTo
// depends only on those exported operations rather than on the concrete
// DistributedGraph type.
type graphPort[T any] interface {
	Link(src, tgt *graph.Node[T], layer int, weight float64) *graph.Edge[T]
	Unlink(e *graph.Edge[T])
	Nodes() []*graph.Node[T]
}
