package move

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/dgraph"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/graph"
)

// EndCondition chooses the repeat count N for one Step (spec §4.9): the
// number of frontier-extension rounds run before the fixed point is
// considered reached.
type EndCondition interface {
	Radius(ctx context.Context, c comm.Communicator, localMax int) (int, error)
}

// StaticEndCondition is a known upper bound on range across every agent
// in the cluster, fixed ahead of time. It needs no communication.
type StaticEndCondition int

func (n StaticEndCondition) Radius(_ context.Context, _ comm.Communicator, _ int) (int, error) {
	return int(n), nil
}

// DynamicEndCondition asks the cluster for the maximum mobility or
// perception range among currently-live agents at the start of the round,
// via one AllGather, and uses that as N — tighter than a static bound
// when most agents have a short range.
type DynamicEndCondition struct{}

func (DynamicEndCondition) Radius(ctx context.Context, c comm.Communicator, localMax int) (int, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(localMax); err != nil {
		return 0, fmt.Errorf("%w: encode local max radius: %v", fpid.ErrCodecFailure, err)
	}
	replies, err := c.AllGather(ctx, comm.Tag{Kind: comm.KindUser}, buf.Bytes())
	if err != nil {
		return 0, fmt.Errorf("move: gather end condition: %w", err)
	}
	max := localMax
	for _, payload := range replies {
		var v int
		if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v); err != nil {
			return 0, fmt.Errorf("%w: decode radius: %v", fpid.ErrCodecFailure, err)
		}
		if v > max {
			max = v
		}
	}
	return max, nil
}

// Algorithm runs DMA rounds over a DistributedGraph whose payload type T
// mixes cell and agent values, distinguished at runtime via Agent.
type Algorithm[T any] struct {
	dg  *dgraph.DistributedGraph[T]
	c   comm.Communicator
	end EndCondition
}

// New returns a DMA driver over dg. end chooses how many frontier-
// extension rounds one Step runs.
func New[T any](dg *dgraph.DistributedGraph[T], c comm.Communicator, end EndCondition) *Algorithm[T] {
	return &Algorithm[T]{dg: dg, c: c, end: end}
}

// MoveTo requests that agent relocate to target, validated against the
// agent's current MOVE set.
func (alg *Algorithm[T]) MoveTo(agent, target *graph.Node[T]) error {
	return MoveTo[T](alg.dg, agent, target)
}

func localMaxRange[T any](dg *dgraph.DistributedGraph[T]) int {
	max := 0
	for _, n := range dg.Nodes() {
		if n.Location() != graph.Local {
			continue
		}
		a, ok := agentOf(n)
		if !ok {
			continue
		}
		if r := a.MobilityRange(); r > max {
			max = r
		}
		if r := a.PerceptionRange(); r > max {
			max = r
		}
	}
	return max
}

// Step runs one full DMA round (spec §4.9): the repeat-N-times
// frontier-extension loop, followed by a perception update, each phase
// separated by a graph synchronization barrier.
func (alg *Algorithm[T]) Step(ctx context.Context) error {
	n, err := alg.end.Radius(ctx, alg.c, localMaxRange(alg.dg))
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		for _, c := range alg.dg.Nodes() {
			if c.Location() != graph.Local {
				continue
			}
			if _, isAgent := agentOf(c); isAgent {
				continue
			}
			alg.handleNewLocation(c)
			alg.handleMove(c)
			alg.handlePerceive(c)
		}
		if err := alg.dg.Synchronize(ctx); err != nil {
			return err
		}

		for _, a := range alg.dg.Nodes() {
			if a.Location() != graph.Local {
				continue
			}
			if _, isAgent := agentOf(a); !isAgent {
				continue
			}
			alg.handleNewMove(a)
			alg.handleNewPerceive(a)
		}
		if err := alg.dg.Synchronize(ctx); err != nil {
			return err
		}
	}

	for _, c := range alg.dg.Nodes() {
		if c.Location() != graph.Local {
			continue
		}
		if _, isAgent := agentOf(c); isAgent {
			continue
		}
		alg.updatePerceptions(c)
	}
	return alg.dg.Synchronize(ctx)
}

// handleNewLocation consumes NEW_LOCATION edges arriving at cell c:
// each rewrites the moving agent's LOCATION edge, and seeds that agent's
// MOVE/PERCEIVE frontier with c's own neighborhood (c itself, distance 0,
// plus its CELL_SUCCESSOR neighbors, distance 1).
func (alg *Algorithm[T]) handleNewLocation(c *graph.Node[T]) {
	for _, e := range append([]*graph.Edge[T]{}, c.In(LayerNewLocation)...) {
		agent := e.Source
		alg.dg.Unlink(e)

		for _, old := range append([]*graph.Edge[T]{}, agent.Out(LayerLocation)...) {
			alg.dg.Unlink(old)
		}
		alg.dg.Link(agent, c, LayerLocation, 0)

		if _, ok := hasEdgeTo(agent, LayerNewMove, c); !ok {
			alg.dg.Link(agent, c, LayerNewMove, 0)
		}
		if _, ok := hasEdgeTo(agent, LayerNewPerceive, c); !ok {
			alg.dg.Link(agent, c, LayerNewPerceive, 0)
		}
		for _, succ := range c.Out(LayerCellSuccessor) {
			neighbor := succ.Target
			if _, ok := hasEdgeTo(agent, LayerNewMove, neighbor); !ok {
				alg.dg.Link(agent, neighbor, LayerNewMove, 1)
			}
			if _, ok := hasEdgeTo(agent, LayerNewPerceive, neighbor); !ok {
				alg.dg.Link(agent, neighbor, LayerNewPerceive, 1)
			}
		}
	}
}

// handleMove extends the MOVE frontier: every agent already confirmed
// reaching c (an incoming MOVE edge) gets a NEW_MOVE candidate to each of
// c's CELL_SUCCESSOR neighbors, one hop further out.
func (alg *Algorithm[T]) handleMove(c *graph.Node[T]) {
	for _, e := range c.In(LayerMove) {
		agent := e.Source
		d := e.Weight
		for _, succ := range c.Out(LayerCellSuccessor) {
			neighbor := succ.Target
			if _, ok := hasEdgeTo(agent, LayerMove, neighbor); ok {
				continue
			}
			if _, ok := hasEdgeTo(agent, LayerNewMove, neighbor); !ok {
				alg.dg.Link(agent, neighbor, LayerNewMove, d+1)
			}
		}
	}
}

// handlePerceive mirrors handleMove on the PERCEIVE layer.
func (alg *Algorithm[T]) handlePerceive(c *graph.Node[T]) {
	for _, e := range c.In(LayerPerceive) {
		agent := e.Source
		d := e.Weight
		for _, succ := range c.Out(LayerCellSuccessor) {
			neighbor := succ.Target
			if _, ok := hasEdgeTo(agent, LayerPerceive, neighbor); ok {
				continue
			}
			if _, ok := hasEdgeTo(agent, LayerNewPerceive, neighbor); !ok {
				alg.dg.Link(agent, neighbor, LayerNewPerceive, d+1)
			}
		}
	}
}

// handleNewMove performs the range-containment test on the agent's side:
// a NEW_MOVE candidate within mobility range is confirmed onto MOVE (at
// most once per cell, per the duplicate-NEW_MOVE edge-case policy);
// either way the candidate edge is unlinked.
func (alg *Algorithm[T]) handleNewMove(a *graph.Node[T]) {
	agent, _ := agentOf(a)
	for _, e := range append([]*graph.Edge[T]{}, a.Out(LayerNewMove)...) {
		target := e.Target
		d := e.Weight
		alg.dg.Unlink(e)
		if int(d) > agent.MobilityRange() {
			continue
		}
		if _, ok := hasEdgeTo(a, LayerMove, target); ok {
			continue
		}
		alg.dg.Link(a, target, LayerMove, d)
	}
}

// handleNewPerceive mirrors handleNewMove on the PERCEIVE layer.
func (alg *Algorithm[T]) handleNewPerceive(a *graph.Node[T]) {
	agent, _ := agentOf(a)
	for _, e := range append([]*graph.Edge[T]{}, a.Out(LayerNewPerceive)...) {
		target := e.Target
		d := e.Weight
		alg.dg.Unlink(e)
		if int(d) > agent.PerceptionRange() {
			continue
		}
		if _, ok := hasEdgeTo(a, LayerPerceive, target); ok {
			continue
		}
		alg.dg.Link(a, target, LayerPerceive, d)
	}
}

// updatePerceptions recomputes PERCEPTION edges for every agent
// perceiving c: one edge to every other agent currently LOCATION-linked
// to c. Stale PERCEPTION edges rooted in an agent perceiving c are
// cleared first so the recomputation is exact, not additive.
func (alg *Algorithm[T]) updatePerceptions(c *graph.Node[T]) {
	residents := make([]*graph.Node[T], 0, len(c.In(LayerLocation)))
	for _, e := range c.In(LayerLocation) {
		residents = append(residents, e.Source)
	}

	for _, e := range c.In(LayerPerceive) {
		perceiver := e.Source
		for _, old := range append([]*graph.Edge[T]{}, perceiver.Out(LayerPerception)...) {
			if _, stillResident := hasEdgeTo(old.Target, LayerLocation, c); stillResident {
				alg.dg.Unlink(old)
			}
		}
		for _, resident := range residents {
			if resident.ID == perceiver.ID {
				continue
			}
			if _, ok := hasEdgeTo(perceiver, LayerPerception, resident); !ok {
				alg.dg.Link(perceiver, resident, LayerPerception, 0)
			}
		}
	}
}
