package move

import (
	"context"
	"testing"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/localtransport"
	"github.com/fpmas-go/fpmas/dgraph"
	"github.com/fpmas-go/fpmas/graph"
	"github.com/fpmas-go/fpmas/syncmode/ghost"
)

type testAgent struct {
	mobility, perception int
}

func (a testAgent) MobilityRange() int   { return a.mobility }
func (a testAgent) PerceptionRange() int { return a.perception }

type testCell struct{ name string }

// newChain builds a single-rank distributed graph with cells 0..n-1
// linked in a line by CELL_SUCCESSOR edges in both directions.
func newChain(t *testing.T, n int) (*dgraph.DistributedGraph[any], comm.Communicator, []*graph.Node[any]) {
	t.Helper()
	cluster := localtransport.NewCluster(1)
	c := cluster.Rank(0)
	dg := dgraph.New[any](0, 1, c, dgraph.Options{})
	dg.SetMode(ghost.New[any](0, c, dg.Location(), dg, dg.Epoch))

	cells := make([]*graph.Node[any], n)
	for i := 0; i < n; i++ {
		cells[i] = dg.BuildNode(testCell{name: string(rune('a' + i))}, 1)
	}
	for i := 0; i < n-1; i++ {
		dg.Link(cells[i], cells[i+1], LayerCellSuccessor, 1)
		dg.Link(cells[i+1], cells[i], LayerCellSuccessor, 1)
	}
	return dg, c, cells
}

func TestStepBuildsMoveFrontierWithinRange(t *testing.T) {
	dg, c, cells := newChain(t, 4) // cells 0-1-2-3

	agent := dg.BuildNode(any(testAgent{mobility: 2, perception: 1}), 1)
	dg.Link(agent, cells[0], LayerNewLocation, 0)

	alg := New[any](dg, c, StaticEndCondition(2))
	if err := alg.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i, want := range []bool{true, true, true, false} {
		_, got := hasEdgeTo(agent, LayerMove, cells[i])
		if got != want {
			t.Errorf("cell %d: MOVE edge present = %v, want %v", i, got, want)
		}
	}

	// Perception range 1: agent should perceive cells 0 and 1 only.
	for i, want := range []bool{true, true, false, false} {
		_, got := hasEdgeTo(agent, LayerPerceive, cells[i])
		if got != want {
			t.Errorf("cell %d: PERCEIVE edge present = %v, want %v", i, got, want)
		}
	}
}

func TestMoveToRejectsOutOfMobilitySet(t *testing.T) {
	dg, c, cells := newChain(t, 4)
	agent := dg.BuildNode(any(testAgent{mobility: 1, perception: 1}), 1)
	dg.Link(agent, cells[0], LayerNewLocation, 0)

	alg := New[any](dg, c, StaticEndCondition(1))
	if err := alg.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if err := alg.MoveTo(agent, cells[3]); err == nil {
		t.Fatalf("MoveTo(cells[3]) should fail: cell 3 is outside mobility range 1 from cell 0")
	}
	if err := alg.MoveTo(agent, cells[1]); err != nil {
		t.Errorf("MoveTo(cells[1]): %v, want nil (within MOVE set)", err)
	}
}
