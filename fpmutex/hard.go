package fpmutex

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync/atomic"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
)

// Pump is called by a blocked HardMutex client while it waits for a
// response. It must interleave handling of both the mutex server and the
// link server's pending incoming requests (spec §5): a rank that only
// pumped its mutex server could deadlock against a peer that is itself
// blocked waiting on this rank's link server, and vice versa.
type Pump func(ctx context.Context) error

func encodeValue[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: encode mutex payload: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeValue[T any](data []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("%w: decode mutex payload: %v", fpid.ErrCodecFailure, err)
	}
	return v, nil
}

func encodeID(id fpid.ID) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(id); err != nil {
		return nil, fmt.Errorf("%w: encode id: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeID(data []byte) (fpid.ID, error) {
	var id fpid.ID
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&id); err != nil {
		return id, fmt.Errorf("%w: decode id: %v", fpid.ErrCodecFailure, err)
	}
	return id, nil
}

// HardMutex is the client-side handle for a node under Hard sync mode.
// Read is a plain request/response fetch of the owner's current payload —
// there is no release-read message on the wire, so it never takes
// server-side exclusion. Acquire and the explicit Lock/LockShared calls do
// take exclusion on the owner, released by ReleaseAcquire/Unlock/
// UnlockShared respectively.
type HardMutex[T any] struct {
	id    fpid.ID
	owner int32
	c     comm.Communicator
	epoch func() comm.Epoch
	pump  Pump

	sent, received *uint64
}

// NewHardMutex returns a client handle for a DISTANT node owned by owner.
// epoch returns the communicator's current barrier epoch at call time;
// sent/received are shared counters the termination detector reads.
func NewHardMutex[T any](id fpid.ID, owner int32, c comm.Communicator, epoch func() comm.Epoch, pump Pump, sent, received *uint64) *HardMutex[T] {
	return &HardMutex[T]{id: id, owner: owner, c: c, epoch: epoch, pump: pump, sent: sent, received: received}
}

func (m *HardMutex[T]) request(ctx context.Context, kind comm.Kind, respKind comm.Kind, body []byte) ([]byte, error) {
	tag := comm.Tag{Epoch: m.epoch(), Kind: kind}
	if err := m.c.Send(ctx, m.owner, tag, body); err != nil {
		return nil, err
	}
	atomic.AddUint64(m.sent, 1)

	respTag := comm.Tag{Epoch: tag.Epoch, Kind: respKind}
	for {
		if _, ok, err := m.c.IProbe(m.owner, respTag); err != nil {
			return nil, err
		} else if ok {
			data, err := m.c.Recv(ctx, m.owner, respTag)
			if err != nil {
				return nil, err
			}
			atomic.AddUint64(m.received, 1)
			return data, nil
		}
		if err := m.pump(ctx); err != nil {
			return nil, err
		}
	}
}

func (m *HardMutex[T]) Read(ctx context.Context) (T, error) {
	var zero T
	body, err := encodeID(m.id)
	if err != nil {
		return zero, err
	}
	data, err := m.request(ctx, comm.KindRead, comm.KindReadResponse, body)
	if err != nil {
		return zero, err
	}
	return decodeValue[T](data)
}

func (m *HardMutex[T]) ReleaseRead() {}

func (m *HardMutex[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	body, err := encodeID(m.id)
	if err != nil {
		return zero, err
	}
	data, err := m.request(ctx, comm.KindAcquire, comm.KindAcquireResponse, body)
	if err != nil {
		return zero, err
	}
	return decodeValue[T](data)
}

func (m *HardMutex[T]) ReleaseAcquire(ctx context.Context, value T) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}
	body := append(mustEncodeID(m.id), payload...)
	tag := comm.Tag{Epoch: m.epoch(), Kind: comm.KindReleaseAcquire}
	if err := m.c.Send(ctx, m.owner, tag, body); err != nil {
		return err
	}
	atomic.AddUint64(m.sent, 1)
	return nil
}

func mustEncodeID(id fpid.ID) []byte {
	b, err := encodeID(id)
	if err != nil {
		// id is a fixed-shape struct of two integers; gob cannot fail here.
		panic(err)
	}
	return lengthPrefixed(b)
}

// lengthPrefixed frames b with a 4-byte big-endian length so a concatenated
// (id, payload) body can be split unambiguously on the server side.
func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	out[0] = byte(len(b) >> 24)
	out[1] = byte(len(b) >> 16)
	out[2] = byte(len(b) >> 8)
	out[3] = byte(len(b))
	copy(out[4:], b)
	return out
}

func splitLengthPrefixed(data []byte) (head, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("fpmutex: truncated frame")
	}
	n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if len(data) < 4+n {
		return nil, nil, fmt.Errorf("fpmutex: truncated frame body")
	}
	return data[4 : 4+n], data[4+n:], nil
}

func (m *HardMutex[T]) Lock(ctx context.Context) error {
	body, err := encodeID(m.id)
	if err != nil {
		return err
	}
	_, err = m.request(ctx, comm.KindLock, comm.KindLockResponse, body)
	return err
}

func (m *HardMutex[T]) Unlock(ctx context.Context) error {
	body, err := encodeID(m.id)
	if err != nil {
		return err
	}
	tag := comm.Tag{Epoch: m.epoch(), Kind: comm.KindUnlock}
	if err := m.c.Send(ctx, m.owner, tag, body); err != nil {
		return err
	}
	atomic.AddUint64(m.sent, 1)
	return nil
}

func (m *HardMutex[T]) LockShared(ctx context.Context) error {
	body, err := encodeID(m.id)
	if err != nil {
		return err
	}
	_, err = m.request(ctx, comm.KindLockShared, comm.KindLockSharedResponse, body)
	return err
}

func (m *HardMutex[T]) UnlockShared(ctx context.Context) error {
	body, err := encodeID(m.id)
	if err != nil {
		return err
	}
	tag := comm.Tag{Epoch: m.epoch(), Kind: comm.KindUnlockShared}
	if err := m.c.Send(ctx, m.owner, tag, body); err != nil {
		return err
	}
	atomic.AddUint64(m.sent, 1)
	return nil
}

// Synchronize is a no-op for Hard mode: payloads are fetched on demand by
// Read/Acquire, not refreshed in bulk.
func (m *HardMutex[T]) Synchronize(ctx context.Context) error { return nil }

// ClientCounters exposes the sent/received totals shared by every
// HardMutex client handle on this rank, so the termination detector can
// fold in-flight client requests into its cluster-wide tally. It never
// has pending work of its own to hand off — HandlePending always reports
// false — it exists purely to surface Counters.
type ClientCounters struct {
	Sent, Received *uint64
}

func (c ClientCounters) HandlePending(ctx context.Context) (bool, error) { return false, nil }

func (c ClientCounters) Counters() (sent, received uint64) {
	return atomic.LoadUint64(c.Sent), atomic.LoadUint64(c.Received)
}
