// Package breakpoint implements persisted-state dump/load (spec §9): the
// full-codec snapshot of one rank's local graph, its id counters, and its
// location manager's managed map, serialized opaquely but round-tripping
// exactly through encoding/gob.
package breakpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/fpmas-go/fpmas/dgraph"
	"github.com/fpmas-go/fpmas/fpid"
)

// Dump is the wire format of one rank's breakpoint. The layout is
// intentionally opaque to callers — they go through Encode/Decode, never
// inspect fields directly — but is documented here for the one package
// (this one) that constructs it.
type Dump[T any] struct {
	Rank        int32
	NextNodeSeq uint64
	NextEdgeSeq uint64
	Nodes       []dgraph.NodeSnapshot[T]
	Edges       []dgraph.EdgeSnapshot
	Managed     map[fpid.ID]int32
}

// Capture builds a Dump from dg's current local state.
func Capture[T any](dg *dgraph.DistributedGraph[T]) Dump[T] {
	nodes, edges, nextNodeSeq, nextEdgeSeq, managed := dg.Snapshot()
	return Dump[T]{
		Rank:        dg.Rank(),
		NextNodeSeq: nextNodeSeq,
		NextEdgeSeq: nextEdgeSeq,
		Nodes:       nodes,
		Edges:       edges,
		Managed:     managed,
	}
}

// Apply restores dg (which must be freshly constructed, empty, and on
// the same rank the dump was captured from) from d. Per spec §9, the
// caller must follow Apply with a Synchronize call on dg to bring the
// rest of the cluster's view back in sync.
func Apply[T any](dg *dgraph.DistributedGraph[T], d Dump[T]) error {
	if d.Rank != dg.Rank() {
		return fmt.Errorf("breakpoint: dump is for rank %d, restoring on rank %d", d.Rank, dg.Rank())
	}
	dg.Restore(d.Nodes, d.Edges, d.NextNodeSeq, d.NextEdgeSeq, d.Managed)
	return nil
}

// Encode serializes a Dump with encoding/gob. The payload type T's
// exported fields are round-tripped exactly the way the full-codec
// (package fpid) round-trips node payloads elsewhere in the core.
func Encode[T any](d Dump[T]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("%w: encode breakpoint: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

// PutDump encodes d and stores it under (run, rank, step), recording its
// node/edge counts in the Store's metadata so Inspect can report them
// without decoding.
func PutDump[T any](ctx context.Context, store *Store, run string, step int64, d Dump[T]) error {
	data, err := Encode(d)
	if err != nil {
		return err
	}
	return store.Put(ctx, run, d.Rank, step, len(d.Nodes), len(d.Edges), data)
}

// GetDump retrieves and decodes the dump stored under (run, rank, step).
func GetDump[T any](ctx context.Context, store *Store, run string, rank int32, step int64) (Dump[T], bool, error) {
	data, found, err := store.Get(ctx, run, rank, step)
	if err != nil || !found {
		return Dump[T]{}, found, err
	}
	d, err := Decode[T](data)
	return d, true, err
}

// Decode is the inverse of Encode.
func Decode[T any](data []byte) (Dump[T], error) {
	var d Dump[T]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&d); err != nil {
		return d, fmt.Errorf("%w: decode breakpoint: %v", fpid.ErrCodecFailure, err)
	}
	return d, nil
}
