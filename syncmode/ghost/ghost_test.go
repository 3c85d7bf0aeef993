package ghost

import (
	"context"
	"sync"
	"testing"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/localtransport"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/location"
)

// fakePort is a minimal syncmode.GraphPort[T] stand-in that lets these
// tests exercise DataSync and Linker without a full DistributedGraph.
type fakePort[T any] struct {
	mu sync.Mutex

	local   map[fpid.ID]struct {
		payload T
		weight  float64
	}
	distant map[fpid.ID]struct {
		payload T
		weight  float64
	}

	importedEdges    []fpid.EdgeLight
	unlinkedIncident []fpid.ID
	erasedEdges      []fpid.ID
	erasedNodes      []fpid.ID
}

func newFakePort[T any]() *fakePort[T] {
	return &fakePort[T]{
		local: make(map[fpid.ID]struct {
			payload T
			weight  float64
		}),
		distant: make(map[fpid.ID]struct {
			payload T
			weight  float64
		}),
	}
}

func (p *fakePort[T]) ImportEdge(stub fpid.EdgeLight) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.importedEdges = append(p.importedEdges, stub)
	return nil
}

func (p *fakePort[T]) UnlinkIncident(id fpid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlinkedIncident = append(p.unlinkedIncident, id)
}

func (p *fakePort[T]) EraseEdgeByID(id fpid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erasedEdges = append(p.erasedEdges, id)
}

func (p *fakePort[T]) EraseLocalNode(id fpid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erasedNodes = append(p.erasedNodes, id)
}

func (p *fakePort[T]) SetDistantPayload(id fpid.ID, weight float64, payload T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.distant[id]; !ok {
		return false
	}
	p.distant[id] = struct {
		payload T
		weight  float64
	}{payload, weight}
	return true
}

func (p *fakePort[T]) LocalPayload(id fpid.ID) (T, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.local[id]
	return rec.payload, rec.weight, ok
}

func (p *fakePort[T]) DistantIDs() []fpid.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]fpid.ID, 0, len(p.distant))
	for id := range p.distant {
		ids = append(ids, id)
	}
	return ids
}

func (p *fakePort[T]) setLocal(id fpid.ID, payload T, weight float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local[id] = struct {
		payload T
		weight  float64
	}{payload, weight}
}

func (p *fakePort[T]) setDistantPlaceholder(id fpid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.distant[id] = struct {
		payload T
		weight  float64
	}{}
}

func (p *fakePort[T]) distantPayload(id fpid.ID) (T, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.distant[id]
	return rec.payload, rec.weight
}

func epochEven() comm.Epoch { return comm.EpochEven }

func TestDataSyncRefreshesDistantPayloadFromOwner(t *testing.T) {
	cluster := localtransport.NewCluster(2)
	id := fpid.ID{OriginRank: 0, Sequence: 1}

	owner := newFakePort[string]()
	owner.setLocal(id, "fresh", 3)
	tracker := newFakePort[string]()
	tracker.setDistantPlaceholder(id)

	loc0 := location.New(0)
	loc0.SetLocal(id)
	loc1 := location.New(1)
	loc1.SetDistant(id, 0)

	syncOwner := NewDataSync[string](0, cluster.Rank(0), loc0, owner, epochEven)
	syncTracker := NewDataSync[string](1, cluster.Rank(1), loc1, tracker, epochEven)

	var wg sync.WaitGroup
	var errOwner, errTracker error
	wg.Add(2)
	go func() { defer wg.Done(); errOwner = syncOwner.Synchronize(context.Background(), nil) }()
	go func() { defer wg.Done(); errTracker = syncTracker.Synchronize(context.Background(), []fpid.ID{id}) }()
	wg.Wait()

	if errOwner != nil {
		t.Fatalf("owner Synchronize: %v", errOwner)
	}
	if errTracker != nil {
		t.Fatalf("tracker Synchronize: %v", errTracker)
	}

	payload, weight := tracker.distantPayload(id)
	if payload != "fresh" || weight != 3 {
		t.Errorf("tracker distant replica = (%q, %v), want (\"fresh\", 3)", payload, weight)
	}
}

func TestLinkerSynchronizeLinksDeliversQueuedEdge(t *testing.T) {
	cluster := localtransport.NewCluster(2)
	portA := newFakePort[string]()
	portB := newFakePort[string]()

	linkerA := NewLinker[string](cluster.Rank(0), portA, epochEven)
	linkerB := NewLinker[string](cluster.Rank(1), portB, epochEven)

	edge := fpid.EdgeLight{
		ID:     fpid.ID{OriginRank: 0, Sequence: 99},
		Layer:  0,
		Weight: 1,
		Source: fpid.LightStub{ID: fpid.ID{OriginRank: 0, Sequence: 1}, OriginRank: 0},
		Target: fpid.LightStub{ID: fpid.ID{OriginRank: 1, Sequence: 1}, OriginRank: 1},
	}
	linkerA.QueueLink(edge, 1)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); errA = linkerA.SynchronizeLinks(context.Background()) }()
	go func() { defer wg.Done(); errB = linkerB.SynchronizeLinks(context.Background()) }()
	wg.Wait()

	if errA != nil {
		t.Fatalf("linkerA.SynchronizeLinks: %v", errA)
	}
	if errB != nil {
		t.Fatalf("linkerB.SynchronizeLinks: %v", errB)
	}
	if len(portB.importedEdges) != 1 || portB.importedEdges[0].ID != edge.ID {
		t.Fatalf("portB imported edges = %+v, want exactly %+v", portB.importedEdges, edge)
	}
	if len(portA.importedEdges) != 0 {
		t.Errorf("portA should not import its own queued edge, got %+v", portA.importedEdges)
	}
}

func TestLinkerSynchronizeLinksDeliversUnlinkAndRemoval(t *testing.T) {
	cluster := localtransport.NewCluster(2)
	portA := newFakePort[string]()
	portB := newFakePort[string]()

	linkerA := NewLinker[string](cluster.Rank(0), portA, epochEven)
	linkerB := NewLinker[string](cluster.Rank(1), portB, epochEven)

	removedID := fpid.ID{OriginRank: 1, Sequence: 1}
	unlinkedID := fpid.ID{OriginRank: 0, Sequence: 5}
	linkerA.QueueNodeRemoval(removedID, 1)
	linkerB.QueueUnlink(unlinkedID, 0)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); errA = linkerA.SynchronizeLinks(context.Background()) }()
	go func() { defer wg.Done(); errB = linkerB.SynchronizeLinks(context.Background()) }()
	wg.Wait()

	if errA != nil {
		t.Fatalf("linkerA.SynchronizeLinks: %v", errA)
	}
	if errB != nil {
		t.Fatalf("linkerB.SynchronizeLinks: %v", errB)
	}

	if len(portB.unlinkedIncident) != 1 || portB.unlinkedIncident[0] != removedID {
		t.Errorf("portB unlinkedIncident = %v, want [%v]", portB.unlinkedIncident, removedID)
	}
	if len(portA.erasedEdges) != 1 || portA.erasedEdges[0] != unlinkedID {
		t.Errorf("portA erasedEdges = %v, want [%v]", portA.erasedEdges, unlinkedID)
	}
}
