package balance

import (
	"sort"

	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

// WeightedRoundRobin returns a Partitioner that greedily assigns each node
// to whichever of size ranks currently carries the least total weight,
// visiting nodes in a deterministic (id-sorted) order so every rank
// computes the same assignment from the same graph snapshot. Nodes named
// in fixed keep their current rank.
func WeightedRoundRobin[T any](size int32) Partitioner[T] {
	return func(nodes []*graph.Node[T], fixed map[fpid.ID]struct{}) map[fpid.ID]int32 {
		sorted := make([]*graph.Node[T], len(nodes))
		copy(sorted, nodes)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

		load := make([]float64, size)
		assignment := make(map[fpid.ID]int32, len(sorted))

		for _, n := range sorted {
			if _, pinned := fixed[n.ID]; pinned {
				assignment[n.ID] = n.Rank()
				load[n.Rank()] += weightOf(n)
				continue
			}
			best := int32(0)
			for r := int32(1); r < size; r++ {
				if load[r] < load[best] {
					best = r
				}
			}
			assignment[n.ID] = best
			load[best] += weightOf(n)
		}
		return assignment
	}
}

func weightOf[T any](n *graph.Node[T]) float64 {
	if n.Weight > 0 {
		return n.Weight
	}
	return 1
}
