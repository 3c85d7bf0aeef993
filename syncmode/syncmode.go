// Package syncmode defines the sync-mode contract (C7): the pluggable
// pair (DataSync, SyncLinker) plus mutex factory that commits cross-process
// reads, writes, links, unlinks, and node removals. Concrete modes live in
// the ghost and hard subpackages.
package syncmode

import (
	"context"

	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/fpmutex"
)

// DataSync refreshes DISTANT node payloads from their owning ranks.
// Synchronize with a nil ids slice refreshes every DISTANT node this rank
// holds; a non-nil slice scopes the refresh to exactly those ids (the
// partial sync used after distribute and load-balance).
type DataSync[T any] interface {
	Synchronize(ctx context.Context, ids []fpid.ID) error
}

// SyncLinker buffers cross-process link/unlink/remove effects between
// synchronizations and commits them on demand.
type SyncLinker[T any] interface {
	QueueLink(edge fpid.EdgeLight, remoteOwner int32)
	QueueUnlink(id fpid.ID, remoteOwner int32)
	QueueNodeRemoval(id fpid.ID, remoteOwner int32)
	SynchronizeLinks(ctx context.Context) error
}

// GraphPort is the narrow surface of the distributed graph a sync mode
// needs in order to apply effects arriving from other ranks.
// DistributedGraph implements it; syncmode implementations never import
// package dgraph, which would be circular.
type GraphPort[T any] interface {
	// ImportEdge merges an incoming edge stub per the import_edge rule.
	ImportEdge(stub fpid.EdgeLight) error
	// UnlinkIncident erases every edge currently incident to id (used when
	// a remote rank reports id removed).
	UnlinkIncident(id fpid.ID)
	// EraseEdgeByID erases a single edge by id if present; a no-op
	// otherwise.
	EraseEdgeByID(id fpid.ID)
	// EraseLocalNode erases id from the local graph if present.
	EraseLocalNode(id fpid.ID)
	// SetDistantPayload replaces the payload and weight of a DISTANT node
	// already present locally, returning false if id is not a DISTANT
	// node here.
	SetDistantPayload(id fpid.ID, weight float64, payload T) bool
	// LocalPayload returns the current payload and weight of a LOCAL node
	// owned by this rank, or false if id is not LOCAL here.
	LocalPayload(id fpid.ID) (payload T, weight float64, ok bool)
	// DistantIDs returns every DISTANT node id currently present locally.
	DistantIDs() []fpid.ID
}

// MutexFactory builds a fresh Mutex for a node. get/set close over the
// node's local storage; owner and local tell the factory whether it needs
// to reach across the network at all (a LOCAL node's own rank never does).
type MutexFactory[T any] interface {
	New(id fpid.ID, owner int32, local bool, get func() T, set func(T)) fpmutex.Mutex[T]
}

// Mode bundles the three pieces a DistributedGraph needs from a sync mode.
type Mode[T any] struct {
	DataSync     DataSync[T]
	SyncLinker   SyncLinker[T]
	MutexFactory MutexFactory[T]
}
