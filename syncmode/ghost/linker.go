package ghost

import (
	"context"
	"fmt"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/syncmode"
)

// Linker implements the common SyncLinker skeleton (spec §4.7) verbatim:
// pending links/unlinks/removals are buffered between rounds and flushed
// by three all-to-all exchanges in synchronize_links.
type Linker[T any] struct {
	c     comm.Communicator
	port  syncmode.GraphPort[T]
	epoch func() comm.Epoch

	pendingLinks    map[int32][]fpid.EdgeLight
	pendingUnlinks  map[int32][]fpid.ID
	pendingRemovals map[int32][]fpid.ID
}

// NewLinker returns a Ghost sync linker. epoch reports the current
// barrier epoch at call time.
func NewLinker[T any](c comm.Communicator, port syncmode.GraphPort[T], epoch func() comm.Epoch) *Linker[T] {
	return &Linker[T]{
		c:     c,
		port:  port,
		epoch: epoch,
	}
}

func (l *Linker[T]) tag() comm.Tag { return comm.Tag{Epoch: l.epoch(), Kind: comm.KindLink} }

func (l *Linker[T]) QueueLink(edge fpid.EdgeLight, remoteOwner int32) {
	if l.pendingLinks == nil {
		l.pendingLinks = make(map[int32][]fpid.EdgeLight)
	}
	l.pendingLinks[remoteOwner] = append(l.pendingLinks[remoteOwner], edge)
}

func (l *Linker[T]) QueueUnlink(id fpid.ID, remoteOwner int32) {
	if l.pendingUnlinks == nil {
		l.pendingUnlinks = make(map[int32][]fpid.ID)
	}
	l.pendingUnlinks[remoteOwner] = append(l.pendingUnlinks[remoteOwner], id)
}

func (l *Linker[T]) QueueNodeRemoval(id fpid.ID, remoteOwner int32) {
	if l.pendingRemovals == nil {
		l.pendingRemovals = make(map[int32][]fpid.ID)
	}
	l.pendingRemovals[remoteOwner] = append(l.pendingRemovals[remoteOwner], id)
}

// SynchronizeLinks runs the five-step skeleton: exchange pending links,
// then removals, then unlinks, each over all-to-all, applying each as it
// arrives; the caller (DistributedGraph) is responsible for the final
// "erase edges/nodes now fully non-LOCAL" clearing pass, since that pass
// needs knowledge only the distributed graph has.
func (l *Linker[T]) SynchronizeLinks(ctx context.Context) error {
	linkSends := make(map[int32][]byte, len(l.pendingLinks))
	for owner, edges := range l.pendingLinks {
		encoded, err := fpid.EncodeLightEdges(edges)
		if err != nil {
			return err
		}
		linkSends[owner] = encoded
	}
	received, err := l.c.AllToAll(ctx, l.tag(), linkSends)
	if err != nil {
		return fmt.Errorf("ghost: synchronize links: %w", err)
	}
	for _, payload := range received {
		edges, err := fpid.DecodeLightEdges(payload)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := l.port.ImportEdge(e); err != nil {
				return err
			}
		}
	}

	removalSends := make(map[int32][]byte, len(l.pendingRemovals))
	for owner, ids := range l.pendingRemovals {
		encoded, err := fpid.EncodeIDs(ids)
		if err != nil {
			return err
		}
		removalSends[owner] = encoded
	}
	received, err = l.c.AllToAll(ctx, l.tag(), removalSends)
	if err != nil {
		return fmt.Errorf("ghost: synchronize removals: %w", err)
	}
	for _, payload := range received {
		ids, err := fpid.DecodeIDs(payload)
		if err != nil {
			return err
		}
		for _, id := range ids {
			l.port.UnlinkIncident(id)
		}
	}

	unlinkSends := make(map[int32][]byte, len(l.pendingUnlinks))
	for owner, ids := range l.pendingUnlinks {
		encoded, err := fpid.EncodeIDs(ids)
		if err != nil {
			return err
		}
		unlinkSends[owner] = encoded
	}
	received, err = l.c.AllToAll(ctx, l.tag(), unlinkSends)
	if err != nil {
		return fmt.Errorf("ghost: synchronize unlinks: %w", err)
	}
	for _, payload := range received {
		ids, err := fpid.DecodeIDs(payload)
		if err != nil {
			return err
		}
		for _, id := range ids {
			l.port.EraseEdgeByID(id)
		}
	}

	l.pendingLinks = nil
	l.pendingUnlinks = nil
	l.pendingRemovals = nil
	return nil
}
