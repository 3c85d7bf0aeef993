// Package location implements the location manager (C5): a per-rank
// mapping from node id to owning rank, restricted to the set of nodes this
// rank actually tracks, plus the disjoint local/distant partitions of the
// nodes physically present here.
package location

import (
	"context"
	"fmt"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
)

// Manager tracks, for every node this rank has an opinion about, which
// rank currently owns it, and keeps the local/distant partition of nodes
// physically present on this rank.
type Manager struct {
	rank int32

	managed map[fpid.ID]int32
	local   map[fpid.ID]struct{}
	distant map[fpid.ID]struct{}
}

// New returns an empty manager for the given rank.
func New(rank int32) *Manager {
	return &Manager{
		rank:    rank,
		managed: make(map[fpid.ID]int32),
		local:   make(map[fpid.ID]struct{}),
		distant: make(map[fpid.ID]struct{}),
	}
}

// SetLocal records that id is present here as LOCAL, owned by this rank.
func (m *Manager) SetLocal(id fpid.ID) {
	delete(m.distant, id)
	m.local[id] = struct{}{}
	m.managed[id] = m.rank
}

// SetDistant records that id is present here as DISTANT, owned by owner.
func (m *Manager) SetDistant(id fpid.ID, owner int32) {
	delete(m.local, id)
	m.distant[id] = struct{}{}
	m.managed[id] = owner
}

// Forget drops all bookkeeping for id, e.g. after a node is erased.
func (m *Manager) Forget(id fpid.ID) {
	delete(m.local, id)
	delete(m.distant, id)
	delete(m.managed, id)
}

// Location reports the owning rank of id, and whether this manager has an
// opinion about it at all.
func (m *Manager) Location(id fpid.ID) (rank int32, known bool) {
	rank, known = m.managed[id]
	return rank, known
}

// IsLocal reports whether id is physically present here as LOCAL.
func (m *Manager) IsLocal(id fpid.ID) bool {
	_, ok := m.local[id]
	return ok
}

// IsDistant reports whether id is physically present here as DISTANT.
func (m *Manager) IsDistant(id fpid.ID) bool {
	_, ok := m.distant[id]
	return ok
}

// LocalNodes returns every id currently tracked as LOCAL here.
func (m *Manager) LocalNodes() []fpid.ID {
	out := make([]fpid.ID, 0, len(m.local))
	for id := range m.local {
		out = append(out, id)
	}
	return out
}

// DistantNodes returns every id currently tracked as DISTANT here.
func (m *Manager) DistantNodes() []fpid.ID {
	out := make([]fpid.ID, 0, len(m.distant))
	for id := range m.distant {
		out = append(out, id)
	}
	return out
}

// ManagedSnapshot returns a copy of the full managed map, for a
// breakpoint dump.
func (m *Manager) ManagedSnapshot() map[fpid.ID]int32 {
	out := make(map[fpid.ID]int32, len(m.managed))
	for id, rank := range m.managed {
		out[id] = rank
	}
	return out
}

// Restore replaces this manager's state from a breakpoint: managed
// carries every id's owning rank; local/distant are rebuilt from
// managed by comparing the owning rank against this manager's own rank.
func (m *Manager) Restore(managed map[fpid.ID]int32) {
	m.managed = make(map[fpid.ID]int32, len(managed))
	m.local = make(map[fpid.ID]struct{})
	m.distant = make(map[fpid.ID]struct{})
	for id, rank := range managed {
		m.managed[id] = rank
		if rank == m.rank {
			m.local[id] = struct{}{}
		} else {
			m.distant[id] = struct{}{}
		}
	}
}

// UpdateLocations performs an all-to-all exchange so every rank holding a
// DISTANT replica of a node learns the node's current owning rank. Each
// rank announces, for every node it holds LOCAL, "I own this"; recipients
// that track the id as DISTANT update their managed map accordingly.
func (m *Manager) UpdateLocations(ctx context.Context, c comm.Communicator, tag comm.Tag) error {
	ownership := make(map[fpid.ID]struct{}, len(m.local))
	for id := range m.local {
		ownership[id] = struct{}{}
	}
	ids := make([]fpid.ID, 0, len(ownership))
	for id := range ownership {
		ids = append(ids, id)
	}

	encoded, err := fpid.EncodeIDs(ids)
	if err != nil {
		return err
	}

	sends := make(map[int32][]byte, c.Size())
	for r := int32(0); r < c.Size(); r++ {
		if r == c.Rank() {
			continue
		}
		sends[r] = encoded
	}

	received, err := c.AllToAll(ctx, tag, sends)
	if err != nil {
		return fmt.Errorf("location: update locations: %w", err)
	}

	for owner, payload := range received {
		owned, err := fpid.DecodeIDs(payload)
		if err != nil {
			return err
		}
		for _, id := range owned {
			if _, tracked := m.distant[id]; tracked {
				m.managed[id] = owner
			}
		}
	}
	return nil
}
