package hard

import (
	"context"

	"github.com/fpmas-go/fpmas/fpid"
)

// DataSync is a no-op under Hard mode: payloads are authoritative and
// fetched on demand by Read/Acquire, so there is nothing for a bulk round
// to refresh. It exists only so DistributedGraph's unconditional call to
// data_sync.Synchronize during synchronize()/distribute() has somewhere
// to go regardless of sync mode.
type DataSync[T any] struct{}

func (DataSync[T]) Synchronize(ctx context.Context, ids []fpid.ID) error { return nil }
