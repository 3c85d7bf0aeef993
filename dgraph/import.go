package dgraph

import (
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

// ImportNode merges an incoming full record into the local graph
// (spec §4.4): an existing id is refreshed in place and upgraded to LOCAL;
// an absent id is adopted as a brand-new LOCAL node.
func (dg *DistributedGraph[T]) ImportNode(rec fpid.FullRecord[T]) {
	if existing, ok := dg.g.GetNode(rec.ID); ok {
		existing.SetData(rec.Payload)
		existing.Weight = rec.Weight
		wasLocal := existing.Location() == graph.Local
		existing.SetLocation(graph.Local, dg.rank)
		dg.loc.SetLocal(rec.ID)
		if _, ok := dg.mutexes[rec.ID]; !ok {
			dg.mutexes[rec.ID] = dg.newMutex(existing)
		}
		for _, layer := range existing.Layers() {
			for _, e := range existing.In(layer) {
				e.RecomputeLocation()
			}
			for _, e := range existing.Out(layer) {
				e.RecomputeLocation()
			}
		}
		if !wasLocal {
			dg.fireSetLocal(existing, ImportExistingLocal)
		}
		return
	}

	n := graph.NewNode(rec.ID, rec.Payload, rec.Weight, graph.Local, dg.rank)
	dg.g.InsertNode(n)
	dg.loc.SetLocal(rec.ID)
	dg.mutexes[rec.ID] = dg.newMutex(n)
	dg.fireSetLocal(n, ImportNewLocal)
}

// ImportEdge resolves stub's endpoints by id — rebinding to an existing
// node, or materializing a fresh DISTANT stub node registered for the
// next data sync — then adopts or refreshes the edge itself.
func (dg *DistributedGraph[T]) ImportEdge(stub fpid.EdgeLight) error {
	if existing, ok := dg.g.GetEdge(stub.ID); ok {
		existing.RecomputeLocation()
		return nil
	}

	src := dg.resolveEndpoint(stub.Source)
	tgt := dg.resolveEndpoint(stub.Target)

	e := graph.NewEdge(stub.ID, stub.Layer, stub.Weight, src, tgt)
	dg.g.InsertEdge(e)
	return nil
}

func (dg *DistributedGraph[T]) resolveEndpoint(stub fpid.LightStub) *graph.Node[T] {
	if n, ok := dg.g.GetNode(stub.ID); ok {
		return n
	}
	return dg.InsertDistant(stub)
}

// --- syncmode.GraphPort[T] implementation ---

func (dg *DistributedGraph[T]) UnlinkIncident(id fpid.ID) {
	n, ok := dg.g.GetNode(id)
	if !ok {
		return
	}
	for _, layer := range n.Layers() {
		for _, e := range append(append([]*graph.Edge[T]{}, n.In(layer)...), n.Out(layer)...) {
			dg.g.EraseEdge(e)
		}
	}
}

func (dg *DistributedGraph[T]) EraseEdgeByID(id fpid.ID) {
	if e, ok := dg.g.GetEdge(id); ok {
		dg.g.EraseEdge(e)
	}
}

func (dg *DistributedGraph[T]) EraseLocalNode(id fpid.ID) {
	n, ok := dg.g.GetNode(id)
	if !ok {
		return
	}
	dg.g.EraseNode(n)
	dg.loc.Forget(id)
	delete(dg.mutexes, id)
	delete(dg.unsynchronized, id)
}

func (dg *DistributedGraph[T]) SetDistantPayload(id fpid.ID, weight float64, payload T) bool {
	n, ok := dg.g.GetNode(id)
	if !ok || n.Location() != graph.Distant {
		return false
	}
	n.SetData(payload)
	n.Weight = weight
	delete(dg.unsynchronized, id)
	return true
}

func (dg *DistributedGraph[T]) LocalPayload(id fpid.ID) (payload T, weight float64, ok bool) {
	n, found := dg.g.GetNode(id)
	if !found || n.Location() != graph.Local {
		return payload, 0, false
	}
	return n.Data(), n.Weight, true
}

func (dg *DistributedGraph[T]) DistantIDs() []fpid.ID {
	return dg.loc.DistantNodes()
}

// LocalValue and SetLocalValue give Hard mode's mutex server get/set
// access to a LOCAL node's payload by id, without exposing weight or the
// full GraphPort surface.
func (dg *DistributedGraph[T]) LocalValue(id fpid.ID) (T, bool) {
	payload, _, ok := dg.LocalPayload(id)
	return payload, ok
}

func (dg *DistributedGraph[T]) SetLocalValue(id fpid.ID, payload T) {
	if n, ok := dg.g.GetNode(id); ok && n.Location() == graph.Local {
		n.SetData(payload)
	}
}
