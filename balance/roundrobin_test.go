package balance

import (
	"testing"

	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

func node(seq uint64, weight float64, rank int32) *graph.Node[string] {
	return graph.NewNode(fpid.ID{OriginRank: 0, Sequence: seq}, "x", weight, graph.Local, rank)
}

func TestWeightedRoundRobinBalancesByWeight(t *testing.T) {
	nodes := []*graph.Node[string]{
		node(1, 3, 0),
		node(2, 1, 0),
		node(3, 1, 0),
		node(4, 1, 0),
	}
	partition := WeightedRoundRobin[string](2)(nodes, nil)

	load := map[int32]float64{}
	for _, n := range nodes {
		r, ok := partition[n.ID]
		if !ok {
			t.Fatalf("node %v missing from partition", n.ID)
		}
		load[r] += weightOf(n)
	}
	if load[0] == 0 || load[1] == 0 {
		t.Fatalf("expected both ranks to carry load, got %v", load)
	}
	diff := load[0] - load[1]
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		t.Errorf("load imbalance too large: rank0=%v rank1=%v", load[0], load[1])
	}
}

func TestWeightedRoundRobinHonorsFixed(t *testing.T) {
	pinned := node(1, 5, 1)
	nodes := []*graph.Node[string]{pinned, node(2, 1, 0)}
	fixed := map[fpid.ID]struct{}{pinned.ID: {}}

	partition := WeightedRoundRobin[string](3)(nodes, fixed)
	if partition[pinned.ID] != 1 {
		t.Errorf("pinned node assigned to rank %d, want 1 (its current rank)", partition[pinned.ID])
	}
}

func TestWeightedRoundRobinDefaultsZeroWeightToOne(t *testing.T) {
	n := node(1, 0, 0)
	if got := weightOf(n); got != 1 {
		t.Errorf("weightOf(zero-weight node) = %v, want 1", got)
	}
}

func TestWeightedRoundRobinDeterministicOrdering(t *testing.T) {
	nodes := []*graph.Node[string]{node(3, 1, 0), node(1, 1, 0), node(2, 1, 0)}
	p1 := WeightedRoundRobin[string](2)(nodes, nil)

	reversed := []*graph.Node[string]{nodes[2], nodes[1], nodes[0]}
	p2 := WeightedRoundRobin[string](2)(reversed, nil)

	for id, rank := range p1 {
		if p2[id] != rank {
			t.Errorf("partition differs by input order for %v: %d vs %d", id, rank, p2[id])
		}
	}
}
