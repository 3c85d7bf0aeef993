// Package termination implements the termination detector (C8): a variant
// of the four-counter scheme that lets a barrier return only once no
// request traffic (mutex-server or link-server) is still in flight
// anywhere in the cluster.
//
// Because the mutex server and the link server of a sync mode share one
// communicator and one epoch, a single detector instance must pump both;
// pumping only one reintroduces the deadlock the interleaving rule in
// spec §5 exists to prevent.
package termination

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/fpmas-go/fpmas/comm"
)

// Server is anything the detector must keep draining while it waits for
// quiescence: a mutex server or a link server. HandlePending processes at
// most one waiting incoming message and reports whether it found one;
// Counters reports the cumulative messages sent and received by this
// server since the process started (counters never reset — only their
// deltas across rounds matter).
type Server interface {
	HandlePending(ctx context.Context) (bool, error)
	Counters() (sent, received uint64)
}

// Detector drains a set of servers until the cluster-wide sent/received
// counters agree across two consecutive rounds, then flips the epoch so
// the next barrier's messages are tag-distinguishable from this one's.
type Detector struct {
	rank int32
}

// New returns a detector for the given rank. The detector itself is
// stateless between Terminate calls; rank is stored but Terminate does not
// read it.
func New(rank int32) *Detector {
	return &Detector{rank: rank}
}

func encodeCounters(sent, received uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], sent)
	binary.BigEndian.PutUint64(buf[8:16], received)
	return buf
}

func decodeCounters(data []byte) (sent, received uint64, err error) {
	if len(data) != 16 {
		return 0, 0, fmt.Errorf("termination: malformed counter frame of length %d", len(data))
	}
	return binary.BigEndian.Uint64(data[0:8]), binary.BigEndian.Uint64(data[8:16]), nil
}

// Terminate pumps every server's pending incoming traffic and periodically
// all-gathers cluster-wide sent/received totals, returning once those
// totals agree (every message sent has been received) on two consecutive
// rounds with no server having handled anything in between. It then flips
// epoch and returns the new one.
func (d *Detector) Terminate(ctx context.Context, c comm.Communicator, epoch comm.Epoch, servers []Server) (comm.Epoch, error) {
	tag := comm.Tag{Epoch: epoch, Kind: comm.KindBarrier}

	stableRounds := 0
	for stableRounds < 2 {
		handledAny := false
		for {
			handledThisPass := false
			for _, s := range servers {
				handled, err := s.HandlePending(ctx)
				if err != nil {
					return epoch, fmt.Errorf("termination: %w", err)
				}
				if handled {
					handledThisPass = true
					handledAny = true
				}
			}
			if !handledThisPass {
				break
			}
		}

		var totalSent, totalReceived uint64
		for _, s := range servers {
			sent, received := s.Counters()
			totalSent += sent
			totalReceived += received
		}

		results, err := c.AllGather(ctx, tag, encodeCounters(totalSent, totalReceived))
		if err != nil {
			return epoch, fmt.Errorf("termination: all-gather counters: %w", err)
		}

		quiescent := !handledAny
		var clusterSent, clusterReceived uint64
		for _, payload := range results {
			sent, received, err := decodeCounters(payload)
			if err != nil {
				return epoch, fmt.Errorf("termination: %w", err)
			}
			clusterSent += sent
			clusterReceived += received
		}
		if clusterSent != clusterReceived {
			quiescent = false
		}

		if quiescent {
			stableRounds++
		} else {
			stableRounds = 0
		}
	}

	return epoch.Flip(), nil
}
