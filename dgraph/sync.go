package dgraph

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
	"github.com/fpmas-go/fpmas/internal/telemetry"
)

func encodeRecords[T any](records []fpid.FullRecord[T]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return nil, fmt.Errorf("%w: encode node records: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeRecords[T any](data []byte) ([]fpid.FullRecord[T], error) {
	var records []fpid.FullRecord[T]
	if len(data) == 0 {
		return nil, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode node records: %v", fpid.ErrCodecFailure, err)
	}
	return records, nil
}

// applyPendingLocalRemovals erases, on this rank, every node RemoveNode
// queued: incident edges first, then the node itself.
func (dg *DistributedGraph[T]) applyPendingLocalRemovals() {
	for id := range dg.pendingLocalRemovals {
		if n, ok := dg.g.GetNode(id); ok {
			dg.UnlinkIncident(id)
			dg.g.EraseNode(n)
			dg.loc.Forget(id)
			delete(dg.mutexes, id)
		}
	}
	dg.pendingLocalRemovals = make(map[fpid.ID]struct{})
}

// hasLocalIncidentEdge reports whether n still has at least one incident
// edge whose other endpoint is LOCAL here. Every edge touching a DISTANT
// node is itself DISTANT (I4), so the check looks at the neighbour.
func hasLocalIncidentEdge[T any](n *graph.Node[T]) bool {
	for _, layer := range n.Layers() {
		for _, e := range n.In(layer) {
			if e.Source.Location() == graph.Local {
				return true
			}
		}
		for _, e := range n.Out(layer) {
			if e.Target.Location() == graph.Local {
				return true
			}
		}
	}
	return false
}

// clearExported runs the post-export clear pass (spec §4.4 step 4): a
// node with no remaining LOCAL neighbour is erased outright; otherwise
// only its incident edges whose other endpoint is also non-LOCAL are
// erased.
func (dg *DistributedGraph[T]) clearExported(n *graph.Node[T]) {
	if !hasLocalIncidentEdge(n) {
		dg.g.EraseNode(n)
		dg.loc.Forget(n.ID)
		delete(dg.mutexes, n.ID)
		return
	}
	for _, layer := range n.Layers() {
		for _, e := range append(append([]*graph.Edge[T]{}, n.In(layer)...), n.Out(layer)...) {
			other := e.Source
			if other == n {
				other = e.Target
			}
			if other.Location() != graph.Local {
				dg.g.EraseEdge(e)
			}
		}
	}
}

// Distribute applies partition (node id -> destination rank): drains
// pending link traffic, exports LOCAL nodes assigned elsewhere together
// with their relevant incident edges, imports what arrives, clears
// exported nodes, recomputes ownership, and partially refreshes newly
// arrived DISTANT payloads.
func (dg *DistributedGraph[T]) Distribute(ctx context.Context, partition map[fpid.ID]int32) error {
	op, ctx := telemetry.EmitBarrier(ctx, dg.tracer, "dgraph.distribute", dg.rank, int(dg.epoch))
	dg.log.Debug("distribute starting", "epoch", dg.epoch, "assignments", len(partition))
	err := dg.distribute(ctx, partition)
	op.End(err)
	if err != nil {
		dg.log.Error("distribute failed", "epoch", dg.epoch, "error", err)
	} else {
		dg.log.Debug("distribute complete", "epoch", dg.epoch)
	}
	return err
}

func (dg *DistributedGraph[T]) distribute(ctx context.Context, partition map[fpid.ID]int32) error {
	if err := dg.mode.SyncLinker.SynchronizeLinks(ctx); err != nil {
		return err
	}
	dg.applyPendingLocalRemovals()

	exportedNodes := make(map[int32][]fpid.FullRecord[T])
	exportedEdges := make(map[int32][]fpid.EdgeLight)
	var exported []*graph.Node[T]

	for _, id := range dg.loc.LocalNodes() {
		dest, assigned := partition[id]
		if !assigned || dest == dg.rank {
			continue
		}
		n, ok := dg.g.GetNode(id)
		if !ok {
			continue
		}
		payload, weight, _ := dg.LocalPayload(id)
		exportedNodes[dest] = append(exportedNodes[dest], fpid.FullRecord[T]{ID: id, Payload: payload, Weight: weight})

		for _, layer := range n.Layers() {
			for _, e := range append(append([]*graph.Edge[T]{}, n.In(layer)...), n.Out(layer)...) {
				other := e.Source
				if other == n {
					other = e.Target
				}
				if owner, known := dg.loc.Location(other.ID); known && owner == dest {
					continue
				}
				exportedEdges[dest] = append(exportedEdges[dest], edgeLight(e))
			}
		}
		exported = append(exported, n)
	}

	tag := dg.bulkTag()

	nodeSends := make(map[int32][]byte, len(exportedNodes))
	for dest, records := range exportedNodes {
		encoded, err := encodeRecords(records)
		if err != nil {
			return err
		}
		nodeSends[dest] = encoded
	}
	receivedNodes, err := dg.c.AllToAll(ctx, tag, nodeSends)
	if err != nil {
		return fmt.Errorf("dgraph: distribute nodes: %w", err)
	}

	edgeSends := make(map[int32][]byte, len(exportedEdges))
	for dest, edges := range exportedEdges {
		encoded, err := fpid.EncodeLightEdges(edges)
		if err != nil {
			return err
		}
		edgeSends[dest] = encoded
	}
	receivedEdges, err := dg.c.AllToAll(ctx, tag, edgeSends)
	if err != nil {
		return fmt.Errorf("dgraph: distribute edges: %w", err)
	}

	for _, payload := range receivedNodes {
		records, err := decodeRecords[T](payload)
		if err != nil {
			return err
		}
		for _, rec := range records {
			dg.ImportNode(rec)
		}
	}
	for _, payload := range receivedEdges {
		edges, err := fpid.DecodeLightEdges(payload)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := dg.ImportEdge(e); err != nil {
				return err
			}
		}
	}

	for _, n := range exported {
		wasLocal := n.Location() == graph.Local
		n.SetLocation(graph.Distant, partition[n.ID])
		dg.loc.SetDistant(n.ID, partition[n.ID])
		for _, layer := range n.Layers() {
			for _, e := range n.In(layer) {
				e.RecomputeLocation()
			}
			for _, e := range n.Out(layer) {
				e.RecomputeLocation()
			}
		}
		if wasLocal {
			dg.fireSetDistant(n, ExportDistant)
		}
		dg.clearExported(n)
	}

	if err := dg.loc.UpdateLocations(ctx, dg.c, tag); err != nil {
		return err
	}

	unsynced := make([]fpid.ID, 0, len(dg.unsynchronized))
	for id := range dg.unsynchronized {
		unsynced = append(unsynced, id)
	}
	if err := dg.mode.DataSync.Synchronize(ctx, unsynced); err != nil {
		return err
	}
	if err := dg.synchronizeMutexes(ctx); err != nil {
		return err
	}
	dg.FlipEpoch()
	return nil
}

// Synchronize runs a full barrier round: drain link traffic, clear every
// DISTANT node with no remaining LOCAL neighbour, then refresh the
// payload of every remaining DISTANT node.
func (dg *DistributedGraph[T]) Synchronize(ctx context.Context) error {
	op, ctx := telemetry.EmitBarrier(ctx, dg.tracer, "dgraph.synchronize", dg.rank, int(dg.epoch))
	dg.log.Debug("synchronize starting", "epoch", dg.epoch)
	err := dg.synchronize(ctx)
	op.End(err)
	if err != nil {
		dg.log.Error("synchronize failed", "epoch", dg.epoch, "error", err)
	} else {
		dg.log.Debug("synchronize complete", "epoch", dg.epoch)
	}
	return err
}

func (dg *DistributedGraph[T]) synchronize(ctx context.Context) error {
	if err := dg.mode.SyncLinker.SynchronizeLinks(ctx); err != nil {
		return err
	}
	dg.applyPendingLocalRemovals()

	for _, id := range dg.loc.DistantNodes() {
		n, ok := dg.g.GetNode(id)
		if !ok {
			continue
		}
		if !hasLocalIncidentEdge(n) {
			dg.g.EraseNode(n)
			dg.loc.Forget(id)
			delete(dg.mutexes, id)
		}
	}

	if err := dg.mode.DataSync.Synchronize(ctx, nil); err != nil {
		return err
	}
	if err := dg.synchronizeMutexes(ctx); err != nil {
		return err
	}
	dg.FlipEpoch()
	return nil
}

// SynchronizeNodes is the scoped variant: optionally runs the linker, then
// refreshes payloads for exactly the given ids.
func (dg *DistributedGraph[T]) SynchronizeNodes(ctx context.Context, ids []fpid.ID, synchronizeLinks bool) error {
	dg.log.Debug("synchronize_nodes starting", "epoch", dg.epoch, "ids", len(ids), "synchronize_links", synchronizeLinks)
	if synchronizeLinks {
		if err := dg.mode.SyncLinker.SynchronizeLinks(ctx); err != nil {
			dg.log.Error("synchronize_nodes failed", "epoch", dg.epoch, "error", err)
			return err
		}
		dg.applyPendingLocalRemovals()
	}
	if err := dg.mode.DataSync.Synchronize(ctx, ids); err != nil {
		dg.log.Error("synchronize_nodes failed", "epoch", dg.epoch, "error", err)
		return err
	}
	return dg.synchronizeMutexesFor(ctx, ids)
}

// synchronizeMutexes advances every node's mutex past the barrier that just
// completed. Under Ghost/Hard this is a no-op per node; under Global Ghost
// it retakes each SnapshotMutex's snapshot from the payload the data-sync
// pass just refreshed, which is the only place that snapshot ever moves
// forward (see fpmutex.SnapshotMutex.Synchronize).
func (dg *DistributedGraph[T]) synchronizeMutexes(ctx context.Context) error {
	return dg.synchronizeMutexesFor(ctx, nil)
}

// synchronizeMutexesFor is the scoped variant: ids nil means every mutex
// this rank holds, matching data_sync.Synchronize's own nil convention.
func (dg *DistributedGraph[T]) synchronizeMutexesFor(ctx context.Context, ids []fpid.ID) error {
	if ids == nil {
		for _, m := range dg.mutexes {
			if err := m.Synchronize(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range ids {
		m, ok := dg.mutexes[id]
		if !ok {
			continue
		}
		if err := m.Synchronize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FlipEpoch advances to the next barrier epoch, so a subsequent round's
// messages cannot be mistaken for a stale one still draining. It runs
// after each full Synchronize/Distribute in every sync mode; Hard mode's
// termination detector computes the same flipped epoch, but the Hard
// linker discards it, so this is the only place the epoch advances.
func (dg *DistributedGraph[T]) FlipEpoch() {
	dg.epoch = dg.epoch.Flip()
}
