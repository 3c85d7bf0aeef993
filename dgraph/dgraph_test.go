package dgraph

import (
	"context"
	"sync"
	"testing"

	"github.com/fpmas-go/fpmas/comm/localtransport"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
	"github.com/fpmas-go/fpmas/syncmode/ghost"
)

// newGhostPair wires two in-process ranks with the Ghost sync mode,
// mirroring how package fpmas composes a DistributedGraph with its mode.
func newGhostPair(t *testing.T) (*DistributedGraph[int], *DistributedGraph[int]) {
	t.Helper()
	cluster := localtransport.NewCluster(2)

	dg0 := New[int](0, 2, cluster.Rank(0), Options{})
	dg1 := New[int](1, 2, cluster.Rank(1), Options{})

	dg0.SetMode(ghost.New[int](0, cluster.Rank(0), dg0.Location(), dg0, dg0.Epoch))
	dg1.SetMode(ghost.New[int](1, cluster.Rank(1), dg1.Location(), dg1, dg1.Epoch))

	return dg0, dg1
}

func TestBuildNodeIsLocal(t *testing.T) {
	dg0, _ := newGhostPair(t)
	n := dg0.BuildNode(42, 1)

	if n.Location() != graph.Local {
		t.Fatalf("freshly built node should be Local, got %v", n.Location())
	}
	if got, ok := dg0.LocalValue(n.ID); !ok || got != 42 {
		t.Errorf("LocalValue() = (%d, %v), want (42, true)", got, ok)
	}
}

// TestLinkAcrossRanksCreatesDistantReplica links a node on rank 0 to a
// node on rank 1; after the linker drains, rank 1 must hold a DISTANT
// stub replica of rank 0's node and vice versa.
func TestLinkAcrossRanksCreatesDistantReplica(t *testing.T) {
	dg0, dg1 := newGhostPair(t)

	a := dg0.BuildNode(1, 1)
	b := dg1.BuildNode(2, 1)

	stubB := dg0.InsertDistant(distantStubOf(b))
	e := dg0.Link(a, stubB, 0, 1)
	if e.Location() != graph.Distant {
		t.Fatalf("cross-rank edge should be Distant immediately, got %v", e.Location())
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = dg0.Synchronize(context.Background()) }()
	go func() { defer wg.Done(); errs[1] = dg1.Synchronize(context.Background()) }()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Synchronize: %v", i, err)
		}
	}

	if _, ok := dg1.GetNode(a.ID); !ok {
		t.Fatalf("rank 1 should hold a replica of rank 0's node %v after sync", a.ID)
	}
	replica, _ := dg1.GetNode(a.ID)
	if replica.Location() != graph.Distant {
		t.Errorf("replica on rank 1 should be Distant, got %v", replica.Location())
	}
	if replica.Data() != 1 {
		t.Errorf("replica payload = %d, want 1 (refreshed by data sync)", replica.Data())
	}
}

// TestSynchronizeClearsOrphanedDistantReplicas verifies that a DISTANT
// node with no remaining LOCAL neighbour is erased by Synchronize,
// per the clear-on-sync rule.
func TestSynchronizeClearsOrphanedDistantReplicas(t *testing.T) {
	dg0, dg1 := newGhostPair(t)

	a := dg0.BuildNode(1, 1)
	b := dg1.BuildNode(2, 1)
	stubB := dg0.InsertDistant(distantStubOf(b))
	e := dg0.Link(a, stubB, 0, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = dg0.Synchronize(context.Background()) }()
	go func() { defer wg.Done(); _ = dg1.Synchronize(context.Background()) }()
	wg.Wait()

	dg0.Unlink(e)

	wg.Add(2)
	go func() { defer wg.Done(); _ = dg0.Synchronize(context.Background()) }()
	go func() { defer wg.Done(); _ = dg1.Synchronize(context.Background()) }()
	wg.Wait()

	if _, ok := dg0.GetNode(stubB.ID); ok {
		t.Errorf("expected orphaned distant replica of %v to be erased after unlink+sync", stubB.ID)
	}
}

func distantStubOf[T any](n *graph.Node[T]) fpid.LightStub {
	return fpid.LightStub{ID: n.ID, OriginRank: n.Rank()}
}

// newGlobalGhostPair mirrors newGhostPair but wires the Global Ghost sync
// mode, whose defining semantic (SnapshotMutex) only shows up once a full
// Synchronize round has run.
func newGlobalGhostPair(t *testing.T) (*DistributedGraph[int], *DistributedGraph[int]) {
	t.Helper()
	cluster := localtransport.NewCluster(2)

	dg0 := New[int](0, 2, cluster.Rank(0), Options{})
	dg1 := New[int](1, 2, cluster.Rank(1), Options{})

	dg0.SetMode(ghost.NewGlobal[int](0, cluster.Rank(0), dg0.Location(), dg0, dg0.Epoch))
	dg1.SetMode(ghost.NewGlobal[int](1, cluster.Rank(1), dg1.Location(), dg1, dg1.Epoch))

	return dg0, dg1
}

// TestGlobalGhostSnapshotOnlyAdvancesOnSynchronize verifies that a Global
// Ghost mutex's Read keeps returning the value captured at the last
// Synchronize call even after a write lands in the node's underlying
// storage, and only catches up once Synchronize has run the mutex-sync
// pass (dgraph.synchronizeMutexes).
func TestGlobalGhostSnapshotOnlyAdvancesOnSynchronize(t *testing.T) {
	dg0, dg1 := newGlobalGhostPair(t)

	a := dg0.BuildNode(1, 1)
	ctx := context.Background()

	m, ok := dg0.Mutex(a.ID)
	if !ok {
		t.Fatalf("expected a mutex for freshly built node %v", a.ID)
	}

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.ReleaseAcquire(ctx, 99); err != nil {
		t.Fatalf("ReleaseAcquire: %v", err)
	}

	if got, err := m.Read(ctx); err != nil || got != 1 {
		t.Fatalf("Read() before Synchronize = (%d, %v), want (1, nil) — snapshot must not move on write", got, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = dg0.Synchronize(ctx) }()
	go func() { defer wg.Done(); errs[1] = dg1.Synchronize(ctx) }()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Synchronize: %v", i, err)
		}
	}

	if got, err := m.Read(ctx); err != nil || got != 99 {
		t.Errorf("Read() after Synchronize = (%d, %v), want (99, nil) — snapshot must retake after the barrier", got, err)
	}
}
