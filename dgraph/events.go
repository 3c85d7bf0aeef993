package dgraph

import "github.com/fpmas-go/fpmas/graph"

// Reason explains why a node just transitioned to LOCAL or DISTANT, so
// agent-group bookkeeping and scheduler hooks can react appropriately
// (spec §4.4).
type Reason uint8

const (
	BuildLocal Reason = iota
	ImportNewLocal
	ImportExistingLocal
	ImportNewDistant
	ExportDistant
)

func (r Reason) String() string {
	switch r {
	case BuildLocal:
		return "BUILD_LOCAL"
	case ImportNewLocal:
		return "IMPORT_NEW_LOCAL"
	case ImportExistingLocal:
		return "IMPORT_EXISTING_LOCAL"
	case ImportNewDistant:
		return "IMPORT_NEW_DISTANT"
	case ExportDistant:
		return "EXPORT_DISTANT"
	default:
		return "UNKNOWN"
	}
}

// Event carries a node that just transitioned location, and why.
type Event[T any] struct {
	Node   *graph.Node[T]
	Reason Reason
}

// OnSetLocal registers fn to run, in registration order, whenever a node
// on this rank transitions to LOCAL.
func (dg *DistributedGraph[T]) OnSetLocal(fn func(Event[T])) {
	dg.onSetLocal = append(dg.onSetLocal, fn)
}

// OnSetDistant registers fn to run, in registration order, whenever a node
// on this rank transitions to DISTANT.
func (dg *DistributedGraph[T]) OnSetDistant(fn func(Event[T])) {
	dg.onSetDistant = append(dg.onSetDistant, fn)
}

func (dg *DistributedGraph[T]) fireSetLocal(n *graph.Node[T], reason Reason) {
	ev := Event[T]{Node: n, Reason: reason}
	for _, fn := range dg.onSetLocal {
		fn(ev)
	}
}

func (dg *DistributedGraph[T]) fireSetDistant(n *graph.Node[T], reason Reason) {
	ev := Event[T]{Node: n, Reason: reason}
	for _, fn := range dg.onSetDistant {
		fn(ev)
	}
}
