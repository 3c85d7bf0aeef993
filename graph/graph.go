// Package graph implements the local graph (C3): an in-memory directed
// multigraph keyed by id, with per-layer adjacency and insert/erase
// callbacks. It is oblivious to location — DISTANT replicas look exactly
// like LOCAL nodes to this package; the distributed graph (package dgraph)
// is what gives location meaning.
package graph

import (
	"fmt"

	"github.com/fpmas-go/fpmas/fpid"
)

// Graph is a directed, layered multigraph: for each integer layer id,
// every node carries ordered in/out adjacency lists.
type Graph[T any] struct {
	nodes map[fpid.ID]*Node[T]
	edges map[fpid.ID]*Edge[T]
	cb    callbacks[T]
}

// New returns an empty local graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		nodes: make(map[fpid.ID]*Node[T]),
		edges: make(map[fpid.ID]*Edge[T]),
	}
}

// NewNode constructs a node without inserting it; callers (dgraph) decide
// location and ownership before calling InsertNode.
func NewNode[T any](id fpid.ID, data T, weight float64, location Location, rank int32) *Node[T] {
	return newNode(id, data, weight, location, rank)
}

// NewEdge constructs an edge between two already-inserted nodes without
// inserting it; its location is derived immediately from its endpoints.
func NewEdge[T any](id fpid.ID, layer int, weight float64, src, tgt *Node[T]) *Edge[T] {
	return newEdge(id, layer, weight, src, tgt)
}

// InsertNode adds a node to the graph and fires insert-node callbacks. The
// caller must ensure id is not already present (I2); InsertNode panics on
// a duplicate id, since that would mean the id allocator or import logic
// has a bug, not a recoverable runtime condition.
func (g *Graph[T]) InsertNode(n *Node[T]) {
	if _, exists := g.nodes[n.ID]; exists {
		panic(fmt.Sprintf("graph: duplicate node id %s", n.ID))
	}
	g.nodes[n.ID] = n
	g.fireInsertNode(n)
}

// InsertEdge adds an edge to the graph, wires it into both endpoints'
// adjacency lists, and fires insert-edge callbacks.
func (g *Graph[T]) InsertEdge(e *Edge[T]) {
	if _, exists := g.edges[e.ID]; exists {
		panic(fmt.Sprintf("graph: duplicate edge id %s", e.ID))
	}
	g.edges[e.ID] = e
	e.Source.addOut(e.Layer, e)
	e.Target.addIn(e.Layer, e)
	g.fireInsertEdge(e)
}

// GetNode looks up a node by id.
func (g *Graph[T]) GetNode(id fpid.ID) (*Node[T], bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// GetEdge looks up an edge by id.
func (g *Graph[T]) GetEdge(id fpid.ID) (*Edge[T], bool) {
	e, ok := g.edges[id]
	return e, ok
}

// HasNode reports whether id is present.
func (g *Graph[T]) HasNode(id fpid.ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every node currently in the graph. Order is unspecified.
func (g *Graph[T]) Nodes() []*Node[T] {
	out := make([]*Node[T], 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns every edge currently in the graph. Order is unspecified.
func (g *Graph[T]) Edges() []*Edge[T] {
	out := make([]*Edge[T], 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// NodeCount and EdgeCount report the current sizes.
func (g *Graph[T]) NodeCount() int { return len(g.nodes) }
func (g *Graph[T]) EdgeCount() int { return len(g.edges) }

// SwitchLayer re-indexes e's adjacency on both endpoints onto newLayer.
// The caller (dgraph) is responsible for rejecting this on non-LOCAL
// edges (I-switch-layer); the local graph itself has no notion of
// location.
func (g *Graph[T]) SwitchLayer(e *Edge[T], newLayer int) {
	e.Source.removeOut(e.Layer, e)
	e.Target.removeIn(e.Layer, e)
	e.Layer = newLayer
	e.Source.addOut(newLayer, e)
	e.Target.addIn(newLayer, e)
}

// EraseEdge removes e from the graph, unwires it from both endpoints'
// adjacency lists, and fires erase-edge callbacks.
func (g *Graph[T]) EraseEdge(e *Edge[T]) {
	if _, exists := g.edges[e.ID]; !exists {
		return
	}
	delete(g.edges, e.ID)
	e.Source.removeOut(e.Layer, e)
	e.Target.removeIn(e.Layer, e)
	g.fireEraseEdge(e)
}

// EraseNode removes n from the graph. Per C3, a node's incident edges are
// erased first (each firing its own erase-edge callback), then the node
// itself is removed and erase-node callbacks fire.
func (g *Graph[T]) EraseNode(n *Node[T]) {
	if _, exists := g.nodes[n.ID]; !exists {
		return
	}

	for _, layer := range n.Layers() {
		for _, e := range append([]*Edge[T]{}, n.In(layer)...) {
			g.EraseEdge(e)
		}
		for _, e := range append([]*Edge[T]{}, n.Out(layer)...) {
			g.EraseEdge(e)
		}
	}

	delete(g.nodes, n.ID)
	g.fireEraseNode(n)
}
