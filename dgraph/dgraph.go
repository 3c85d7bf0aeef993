// Package dgraph implements the distributed graph (C4): package graph
// extended with node location state, id allocation, import of foreign
// nodes/edges, and repartition, delegating every cross-process effect to a
// pluggable sync mode (package syncmode).
package dgraph

import (
	"log/slog"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/fpmutex"
	"github.com/fpmas-go/fpmas/graph"
	"github.com/fpmas-go/fpmas/internal/logging"
	"github.com/fpmas-go/fpmas/location"
	"github.com/fpmas-go/fpmas/syncmode"

	"go.opentelemetry.io/otel/trace"
)

// DistributedGraph is the core data structure every FPMAS rank holds: a
// local graph (package graph) plus the location, mutex, and sync-mode
// machinery that give it cluster-wide meaning.
type DistributedGraph[T any] struct {
	rank int32
	size int32
	c    comm.Communicator

	nodeAlloc *fpid.Allocator
	edgeAlloc *fpid.Allocator

	g   *graph.Graph[T]
	loc *location.Manager

	mode    syncmode.Mode[T]
	mutexes map[fpid.ID]fpmutex.Mutex[T]

	epoch  comm.Epoch
	log    *slog.Logger
	tracer trace.Tracer

	// nodes that just arrived as DISTANT and have not yet had a full
	// payload fetched — fed to a partial data sync after distribute/import.
	unsynchronized map[fpid.ID]struct{}

	// local node ids queued for removal after the next linker round,
	// per the "no immediate local erase" rule for remove_node (§4.4, §9).
	pendingLocalRemovals map[fpid.ID]struct{}

	onSetLocal   []func(Event[T])
	onSetDistant []func(Event[T])
}

// Options configures optional ambient dependencies.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
}

// New constructs an empty distributed graph for this rank. The returned
// graph has no sync mode until SetMode is called — sync modes need a
// syncmode.GraphPort, which this type itself implements, so construction
// is necessarily two-phase.
func New[T any](rank, size int32, c comm.Communicator, opts Options) *DistributedGraph[T] {
	if opts.Logger == nil {
		opts.Logger = logging.WithRank(rank)
	}
	return &DistributedGraph[T]{
		rank:                 rank,
		size:                 size,
		c:                    c,
		nodeAlloc:            fpid.NewAllocator(rank),
		edgeAlloc:            fpid.NewAllocator(rank),
		g:                    graph.New[T](),
		loc:                  location.New(rank),
		mutexes:              make(map[fpid.ID]fpmutex.Mutex[T]),
		unsynchronized:       make(map[fpid.ID]struct{}),
		pendingLocalRemovals: make(map[fpid.ID]struct{}),
		epoch:                comm.EpochEven,
		log:                  opts.Logger.With("component", "dgraph"),
		tracer:               opts.Tracer,
	}
}

// SetMode installs the sync mode. Call once, before any mutating
// operation.
func (dg *DistributedGraph[T]) SetMode(mode syncmode.Mode[T]) {
	dg.mode = mode
}

// Rank and Size report this graph's position in the cluster.
func (dg *DistributedGraph[T]) Rank() int32 { return dg.rank }
func (dg *DistributedGraph[T]) Size() int32 { return dg.size }

// Epoch returns the current barrier epoch.
func (dg *DistributedGraph[T]) Epoch() comm.Epoch { return dg.epoch }

// Location exposes the location manager backing this graph, so a sync
// mode built outside the package (see package fpmas) shares the exact
// same ownership state rather than tracking a divergent copy.
func (dg *DistributedGraph[T]) Location() *location.Manager { return dg.loc }

func (dg *DistributedGraph[T]) bulkTag() comm.Tag { return comm.Tag{Epoch: dg.epoch, Kind: comm.KindBulk} }

// GetNode, GetEdge, Nodes, Edges mirror the local graph's read surface.
func (dg *DistributedGraph[T]) GetNode(id fpid.ID) (*graph.Node[T], bool) { return dg.g.GetNode(id) }
func (dg *DistributedGraph[T]) GetEdge(id fpid.ID) (*graph.Edge[T], bool) { return dg.g.GetEdge(id) }
func (dg *DistributedGraph[T]) Nodes() []*graph.Node[T]                   { return dg.g.Nodes() }
func (dg *DistributedGraph[T]) Edges() []*graph.Edge[T]                   { return dg.g.Edges() }

// Mutex returns the mutex handle for id, or false if id is not present on
// this rank.
func (dg *DistributedGraph[T]) Mutex(id fpid.ID) (fpmutex.Mutex[T], bool) {
	m, ok := dg.mutexes[id]
	return m, ok
}

func (dg *DistributedGraph[T]) newMutex(n *graph.Node[T]) fpmutex.Mutex[T] {
	owner, _ := dg.loc.Location(n.ID)
	local := n.Location() == graph.Local
	return dg.mode.MutexFactory.New(n.ID, owner, local, n.Data, n.SetData)
}

// BuildNode allocates the next local node id, inserts payload as LOCAL,
// records ownership, attaches a fresh mutex, and fires BuildLocal.
func (dg *DistributedGraph[T]) BuildNode(payload T, weight float64) *graph.Node[T] {
	id := dg.nodeAlloc.Next()
	n := graph.NewNode(id, payload, weight, graph.Local, dg.rank)
	dg.g.InsertNode(n)
	dg.loc.SetLocal(id)
	dg.mutexes[id] = dg.newMutex(n)
	dg.fireSetLocal(n, BuildLocal)
	return n
}

// InsertDistant is idempotent: if stub.ID is absent, it inserts a new
// DISTANT node owned by stub.OriginRank; otherwise it returns the
// existing node and drops the stub.
func (dg *DistributedGraph[T]) InsertDistant(stub fpid.LightStub) *graph.Node[T] {
	if existing, ok := dg.g.GetNode(stub.ID); ok {
		return existing
	}
	var zero T
	n := graph.NewNode(stub.ID, zero, 0, graph.Distant, stub.OriginRank)
	dg.g.InsertNode(n)
	dg.loc.SetDistant(stub.ID, stub.OriginRank)
	dg.mutexes[stub.ID] = dg.newMutex(n)
	dg.unsynchronized[stub.ID] = struct{}{}
	dg.fireSetDistant(n, ImportNewDistant)
	return n
}

// remoteOwnersOf returns the distinct owning ranks of e's endpoints that
// are not LOCAL on this rank — the set of ranks that need to hear about a
// link/unlink touching e.
func (dg *DistributedGraph[T]) remoteOwnersOf(src, tgt *graph.Node[T]) []int32 {
	seen := make(map[int32]struct{})
	var out []int32
	for _, n := range [...]*graph.Node[T]{src, tgt} {
		if n.Location() == graph.Local && n.Rank() == dg.rank {
			continue
		}
		owner, known := dg.loc.Location(n.ID)
		if !known {
			owner = n.Rank()
		}
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		out = append(out, owner)
	}
	return out
}

func lightStub[T any](n *graph.Node[T]) fpid.LightStub {
	return fpid.LightStub{ID: n.ID, OriginRank: n.Rank()}
}

func edgeLight[T any](e *graph.Edge[T]) fpid.EdgeLight {
	return fpid.EdgeLight{
		ID:     e.ID,
		Layer:  e.Layer,
		Weight: e.Weight,
		Source: lightStub(e.Source),
		Target: lightStub(e.Target),
	}
}

// Link allocates the next local edge id, derives its state from the
// endpoints (I4), hands it to the sync linker for any needed
// cross-process propagation, and inserts it locally.
func (dg *DistributedGraph[T]) Link(src, tgt *graph.Node[T], layer int, weight float64) *graph.Edge[T] {
	id := dg.edgeAlloc.Next()
	e := graph.NewEdge(id, layer, weight, src, tgt)

	for _, owner := range dg.remoteOwnersOf(src, tgt) {
		dg.mode.SyncLinker.QueueLink(edgeLight(e), owner)
	}

	dg.g.InsertEdge(e)
	return e
}

// Unlink informs the sync linker first, then erases the edge locally.
func (dg *DistributedGraph[T]) Unlink(e *graph.Edge[T]) {
	for _, owner := range dg.remoteOwnersOf(e.Source, e.Target) {
		dg.mode.SyncLinker.QueueUnlink(e.ID, owner)
	}
	dg.g.EraseEdge(e)
}

// RemoveNode is delegated entirely to the sync linker: remote ranks
// holding a replica are told to unlink and erase it, and this rank's own
// copy is queued for erase after the next linker round rather than erased
// immediately (spec §4.4, §9 open question).
func (dg *DistributedGraph[T]) RemoveNode(n *graph.Node[T]) {
	notified := make(map[int32]struct{})
	for _, layer := range n.Layers() {
		for _, e := range append(append([]*graph.Edge[T]{}, n.In(layer)...), n.Out(layer)...) {
			other := e.Source
			if other == n {
				other = e.Target
			}
			if other.Location() == graph.Local && other.Rank() == dg.rank {
				continue
			}
			owner, known := dg.loc.Location(other.ID)
			if !known {
				owner = other.Rank()
			}
			if _, dup := notified[owner]; dup {
				continue
			}
			notified[owner] = struct{}{}
			dg.mode.SyncLinker.QueueNodeRemoval(n.ID, owner)
		}
	}
	dg.pendingLocalRemovals[n.ID] = struct{}{}
}

// SwitchLayer re-indexes e onto newLayer. Only valid on LOCAL edges.
func (dg *DistributedGraph[T]) SwitchLayer(e *graph.Edge[T], newLayer int) error {
	if e.Location() != graph.Local {
		return fpid.ErrInvalidLayerSwitch
	}
	dg.g.SwitchLayer(e, newLayer)
	return nil
}
