package graph

import "github.com/fpmas-go/fpmas/fpid"

// Edge connects two nodes on a single layer. Its state is derived from its
// endpoints (I4): LOCAL iff both endpoints are LOCAL on the same rank.
type Edge[T any] struct {
	ID     fpid.ID
	Layer  int
	Weight float64

	Source *Node[T]
	Target *Node[T]

	location Location
}

func newEdge[T any](id fpid.ID, layer int, weight float64, src, tgt *Node[T]) *Edge[T] {
	e := &Edge[T]{ID: id, Layer: layer, Weight: weight, Source: src, Target: tgt}
	e.recomputeLocation()
	return e
}

// Location reports whether this edge is LOCAL or DISTANT.
func (e *Edge[T]) Location() Location { return e.location }

// RecomputeLocation applies I4: LOCAL iff both endpoints are LOCAL on the
// same rank. Distributed graph import logic calls this whenever an
// endpoint's location or owning rank changes.
func (e *Edge[T]) RecomputeLocation() {
	e.recomputeLocation()
}

func (e *Edge[T]) recomputeLocation() {
	if e.Source.location == Local && e.Target.location == Local && e.Source.rank == e.Target.rank {
		e.location = Local
		return
	}
	e.location = Distant
}
