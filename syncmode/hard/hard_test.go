package hard

import (
	"context"
	"sync"
	"testing"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/localtransport"
	"github.com/fpmas-go/fpmas/fpid"
)

// fakePort is a minimal syncmode.GraphPort[T] stand-in, mirroring the one
// used in package ghost's tests but kept local since test helpers aren't
// exported across packages.
type fakePort[T any] struct {
	mu sync.Mutex

	importedEdges    []fpid.EdgeLight
	unlinkedIncident []fpid.ID
	erasedEdges      []fpid.ID
	erasedNodes      []fpid.ID
}

func newFakePort[T any]() *fakePort[T] { return &fakePort[T]{} }

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

func (p *fakePort[T]) SetDistantPayload(id fpid.ID, weight float64, payload T) bool { return false }

func (p *fakePort[T]) LocalPayload(id fpid.ID) (T, float64, bool) {
	var zero T
	return zero, 0, false
}

func (p *fakePort[T]) DistantIDs() []fpid.ID { return nil }

func epochEven() comm.Epoch { return comm.EpochEven }

func TestDataSyncIsNoOp(t *testing.T) {
	var ds DataSync[string]
	if err := ds.Synchronize(context.Background(), []fpid.ID{{OriginRank: 0, Sequence: 1}}); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
}

func TestLinkerStreamsQueuedTrafficImmediately(t *testing.T) {
	cluster := localtransport.NewCluster(2)
	portA := newFakePort[string]()
	portB := newFakePort[string]()

	linkerA := NewLinker[string](0, cluster.Rank(0), portA, epochEven)
	linkerB := NewLinker[string](1, cluster.Rank(1), portB, epochEven)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := linkerB.HandlePending(context.Background()); err != nil {
				t.Errorf("linkerB.HandlePending: %v", err)
				return
			}
		}
	}()

	edge := fpid.EdgeLight{
		ID:     fpid.ID{OriginRank: 0, Sequence: 1},
		Layer:  0,
		Weight: 1,
		Source: fpid.LightStub{ID: fpid.ID{OriginRank: 0, Sequence: 1}, OriginRank: 0},
		Target: fpid.LightStub{ID: fpid.ID{OriginRank: 1, Sequence: 2}, OriginRank: 1},
	}
	linkerA.QueueLink(edge, 1)

	unlinkID := fpid.ID{OriginRank: 0, Sequence: 7}
	linkerA.QueueUnlink(unlinkID, 1)

	removeID := fpid.ID{OriginRank: 1, Sequence: 3}
	linkerA.QueueNodeRemoval(removeID, 1)

	close(stop)
	wg.Wait()

	if len(portB.importedEdges) != 1 || portB.importedEdges[0].ID != edge.ID {
		t.Fatalf("portB importedEdges = %+v, want exactly [%+v]", portB.importedEdges, edge)
	}
	if len(portB.erasedEdges) != 1 || portB.erasedEdges[0] != unlinkID {
		t.Errorf("portB erasedEdges = %v, want [%v]", portB.erasedEdges, unlinkID)
	}
	if len(portB.unlinkedIncident) != 1 || portB.unlinkedIncident[0] != removeID {
		t.Errorf("portB unlinkedIncident = %v, want [%v]", portB.unlinkedIncident, removeID)
	}
	if len(portB.erasedNodes) != 1 || portB.erasedNodes[0] != removeID {
		t.Errorf("portB erasedNodes = %v, want [%v]", portB.erasedNodes, removeID)
	}

	sentA, receivedA := linkerA.Counters()
	if sentA != 3 || receivedA != 0 {
		t.Errorf("linkerA counters sent=%d received=%d, want 3/0", sentA, receivedA)
	}
	sentB, receivedB := linkerB.Counters()
	if sentB != 0 || receivedB != 3 {
		t.Errorf("linkerB counters sent=%d received=%d, want 0/3", sentB, receivedB)
	}
}

func TestSynchronizeLinksTerminatesWithNoPendingTraffic(t *testing.T) {
	cluster := localtransport.NewCluster(2)
	portA := newFakePort[string]()
	portB := newFakePort[string]()

	linkerA := NewLinker[string](0, cluster.Rank(0), portA, epochEven)
	linkerB := NewLinker[string](1, cluster.Rank(1), portB, epochEven)

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
}
