package graph

import "github.com/fpmas-go/fpmas/fpid"

// Location qualifies a node's presence on a given rank: LOCAL means this
// rank holds the authoritative copy, DISTANT means it holds a replica.
type Location uint8

const (
	Local Location = iota
	Distant
)

func (l Location) String() string {
	if l == Local {
		return "LOCAL"
	}
	return "DISTANT"
}

// Node is one vertex of the local graph. T is the opaque payload type; the
// graph package never inspects it.
type Node[T any] struct {
	ID     fpid.ID
	data   T
	Weight float64

	location Location
	rank     int32 // owning rank; meaningful regardless of location

	// in/out are keyed by layer id; adjacency is oblivious to location.
	in  map[int][]*Edge[T]
	out map[int][]*Edge[T]
}

func newNode[T any](id fpid.ID, data T, weight float64, location Location, rank int32) *Node[T] {
	return &Node[T]{
		ID:       id,
		data:     data,
		Weight:   weight,
		location: location,
		rank:     rank,
		in:       make(map[int][]*Edge[T]),
		out:      make(map[int][]*Edge[T]),
	}
}

// Data returns the node's current payload. The local graph applies no
// access discipline of its own: callers that need the mutex contract (C6)
// go through fpmutex, not this accessor, for any node that might be
// DISTANT or concurrently read by a mutex server.
func (n *Node[T]) Data() T { return n.data }

// SetData replaces the node's payload in place.
func (n *Node[T]) SetData(v T) { n.data = v }

// Location reports whether this node is LOCAL or DISTANT on the rank that
// holds it.
func (n *Node[T]) Location() Location { return n.location }

// Rank returns the node's owning rank.
func (n *Node[T]) Rank() int32 { return n.rank }

// SetLocation updates location and owning rank together, e.g. when a node
// transitions LOCAL<->DISTANT during import or export. Callers must
// recompute the location of this node's incident edges afterward (I4).
func (n *Node[T]) SetLocation(loc Location, rank int32) {
	n.location = loc
	n.rank = rank
}

// In returns the incoming edges on a layer, in insertion order.
func (n *Node[T]) In(layer int) []*Edge[T] { return n.in[layer] }

// Out returns the outgoing edges on a layer, in insertion order.
func (n *Node[T]) Out(layer int) []*Edge[T] { return n.out[layer] }

// Layers returns every layer id with at least one incident edge,
// deduplicated, in deterministic (sorted) order.
func (n *Node[T]) Layers() []int {
	seen := make(map[int]struct{})
	for l, edges := range n.in {
		if len(edges) > 0 {
			seen[l] = struct{}{}
		}
	}
	for l, edges := range n.out {
		if len(edges) > 0 {
			seen[l] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func (n *Node[T]) addOut(layer int, e *Edge[T]) {
	n.out[layer] = append(n.out[layer], e)
}

func (n *Node[T]) addIn(layer int, e *Edge[T]) {
	n.in[layer] = append(n.in[layer], e)
}

func (n *Node[T]) removeOut(layer int, e *Edge[T]) {
	n.out[layer] = removeEdge(n.out[layer], e)
}

func (n *Node[T]) removeIn(layer int, e *Edge[T]) {
	n.in[layer] = removeEdge(n.in[layer], e)
}

func removeEdge[T any](edges []*Edge[T], target *Edge[T]) []*Edge[T] {
	for i, e := range edges {
		if e == target {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
