package fpid

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec is the full-codec tier: it round-trips a node's payload, weight,
// and structural fields. It is used whenever a replica must carry agent
// data — ghost data-sync replies, repartition exports, breakpoint dumps.
//
// Implementations must be total for T: EncodeFull must never fail for a
// value the caller legitimately constructed, and DecodeFull must recover
// exactly what was encoded. The core never inspects T; it only calls
// through this interface.
type Codec[T any] interface {
	EncodeFull(FullRecord[T]) ([]byte, error)
	DecodeFull([]byte) (FullRecord[T], error)
}

// FullRecord is what crosses the wire for a single node under the full
// codec: enough to materialize or refresh a replica without any other
// context.
type FullRecord[T any] struct {
	ID      ID
	Payload T
	Weight  float64
}

// GobCodec is the default full-codec implementation, backed by
// encoding/gob. gob is chosen over encoding/json here because it round
// trips arbitrary exported-field payload types (including binary data)
// without per-type marshal hooks, which matches the "total for the user's
// payload type" requirement more directly than a json codec would for an
// arbitrary T.
type GobCodec[T any] struct{}

// NewGobCodec returns the default gob-backed full codec for T.
func NewGobCodec[T any]() GobCodec[T] {
	return GobCodec[T]{}
}

func (GobCodec[T]) EncodeFull(rec FullRecord[T]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("%w: encode full record %s: %v", ErrCodecFailure, rec.ID, err)
	}
	return buf.Bytes(), nil
}

func (GobCodec[T]) DecodeFull(data []byte) (FullRecord[T], error) {
	var rec FullRecord[T]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return rec, fmt.Errorf("%w: decode full record: %v", ErrCodecFailure, err)
	}
	return rec, nil
}

// LightStub is the light-codec tier: structure-only serialization used in
// hot paths where the receiver will resolve payloads from its own tables,
// or does not need them at all (edge propagation, node stubs exchanged
// during repartition).
type LightStub struct {
	ID         ID
	OriginRank int32 // owning rank hint, used by insert_distant / import_node
}

// EdgeLight is the light-codec tier for an edge: ids, layer, and temporary
// stubs for both endpoints so the receiver can resolve or materialize them
// without the endpoints' payloads.
type EdgeLight struct {
	ID     ID
	Layer  int
	Weight float64
	Source LightStub
	Target LightStub
}

// EncodeLightEdges and DecodeLightEdges round-trip lists of EdgeLight
// values (with their LightStub endpoints).
// These never touch T, so a single gob codec instance serves every
// DistributedGraph[T] instantiation in a process.
func EncodeLightEdges(edges []EdgeLight) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(edges); err != nil {
		return nil, fmt.Errorf("%w: encode light edges: %v", ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func DecodeLightEdges(data []byte) ([]EdgeLight, error) {
	var edges []EdgeLight
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&edges); err != nil {
		return nil, fmt.Errorf("%w: decode light edges: %v", ErrCodecFailure, err)
	}
	return edges, nil
}

func EncodeIDs(ids []ID) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ids); err != nil {
		return nil, fmt.Errorf("%w: encode ids: %v", ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func DecodeIDs(data []byte) ([]ID, error) {
	var ids []ID
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ids); err != nil {
		return nil, fmt.Errorf("%w: decode ids: %v", ErrCodecFailure, err)
	}
	return ids, nil
}
