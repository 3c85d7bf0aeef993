package location

import (
	"context"
	"sync"
	"testing"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/localtransport"
	"github.com/fpmas-go/fpmas/fpid"
)

func TestManagerSetLocalDistant(t *testing.T) {
	m := New(0)
	id := fpid.ID{OriginRank: 0, Sequence: 1}

	m.SetLocal(id)
	if !m.IsLocal(id) || m.IsDistant(id) {
		t.Fatalf("after SetLocal, IsLocal=%v IsDistant=%v, want true/false", m.IsLocal(id), m.IsDistant(id))
	}
	rank, known := m.Location(id)
	if !known || rank != 0 {
		t.Fatalf("Location() = (%d, %v), want (0, true)", rank, known)
	}

	m.SetDistant(id, 2)
	if m.IsLocal(id) || !m.IsDistant(id) {
		t.Fatalf("after SetDistant, IsLocal=%v IsDistant=%v, want false/true", m.IsLocal(id), m.IsDistant(id))
	}
	rank, known = m.Location(id)
	if !known || rank != 2 {
		t.Fatalf("Location() = (%d, %v), want (2, true)", rank, known)
	}
}

func TestManagerForget(t *testing.T) {
	m := New(0)
	id := fpid.ID{OriginRank: 0, Sequence: 1}
	m.SetLocal(id)
	m.Forget(id)

	if m.IsLocal(id) || m.IsDistant(id) {
		t.Fatalf("after Forget, id should be untracked")
	}
	if _, known := m.Location(id); known {
		t.Fatalf("Location() reported known after Forget")
	}
}

func TestManagerSnapshotRestore(t *testing.T) {
	m := New(1)
	localID := fpid.ID{OriginRank: 1, Sequence: 1}
	distantID := fpid.ID{OriginRank: 0, Sequence: 1}
	m.SetLocal(localID)
	m.SetDistant(distantID, 0)

	snap := m.ManagedSnapshot()
	if len(snap) != 2 {
		t.Fatalf("ManagedSnapshot() has %d entries, want 2", len(snap))
	}

	restored := New(1)
	restored.Restore(snap)

	if !restored.IsLocal(localID) {
		t.Errorf("restored manager should track %v as local", localID)
	}
	if !restored.IsDistant(distantID) {
		t.Errorf("restored manager should track %v as distant", distantID)
	}
}

func TestManagerLocalDistantNodes(t *testing.T) {
	m := New(0)
	a := fpid.ID{OriginRank: 0, Sequence: 1}
	b := fpid.ID{OriginRank: 0, Sequence: 2}
	c := fpid.ID{OriginRank: 1, Sequence: 1}

	m.SetLocal(a)
	m.SetLocal(b)
	m.SetDistant(c, 1)

	local := m.LocalNodes()
	if len(local) != 2 {
		t.Errorf("LocalNodes() returned %d ids, want 2", len(local))
	}
	distant := m.DistantNodes()
	if len(distant) != 1 || distant[0] != c {
		t.Errorf("DistantNodes() = %v, want [%v]", distant, c)
	}
}

// TestUpdateLocationsPropagatesOwnership exercises the all-to-all ownership
// exchange across three in-process ranks: rank 2 moves a node it holds
// LOCAL, and rank 0 — which tracks it as DISTANT — must learn the new
// owner after one UpdateLocations round.
func TestUpdateLocationsPropagatesOwnership(t *testing.T) {
	cluster := localtransport.NewCluster(3)
	moved := fpid.ID{OriginRank: 2, Sequence: 1}

	managers := make([]*Manager, 3)
	for r := int32(0); r < 3; r++ {
		managers[r] = New(r)
	}
	managers[2].SetLocal(moved)
	managers[0].SetDistant(moved, 1) // rank 0 starts out thinking rank 1 owns it

	tag := comm.Tag{Epoch: 0, Kind: comm.KindBulk}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for r := int32(0); r < 3; r++ {
		wg.Add(1)
		go func(r int32) {
			defer wg.Done()
			errs[r] = managers[r].UpdateLocations(context.Background(), cluster.Rank(r), tag)
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: UpdateLocations: %v", r, err)
		}
	}

	rank, known := managers[0].Location(moved)
	if !known || rank != 2 {
		t.Errorf("rank 0 location for %v = (%d, %v), want (2, true)", moved, rank, known)
	}
}
