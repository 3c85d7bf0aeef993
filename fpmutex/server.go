package fpmutex

import (
	"context"
	"sync/atomic"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
)

type lockState uint8

const (
	stateFree lockState = iota
	stateShared
	stateExclusive
)

type pendingRequest struct {
	source    int32
	exclusive bool // true for ACQUIRE/LOCK, false for LOCK_SHARED
	isAcquire bool // true for ACQUIRE (needs a payload reply), false for LOCK
}

type nodeLock struct {
	state   lockState
	readers int
	queue   []pendingRequest
}

// Server is the owner-side mutex server (C6, Hard mode): it mediates every
// remote ACQUIRE/LOCK/LOCK_SHARED request against the LOCAL nodes it is
// responsible for, using a single FIFO queue per node so a pending write
// blocks subsequent LOCK_SHARED requests and shared holders coalesce until
// the shared count returns to zero. READ is answered at once with the
// current payload: it takes no lock state and does not wait behind a held
// or queued write.
type Server[T any] struct {
	rank int32
	c    comm.Communicator
	get  func(id fpid.ID) (T, bool)
	set  func(id fpid.ID, v T)
	epoch func() comm.Epoch

	locks map[fpid.ID]*nodeLock

	sent, received uint64
}

// NewServer returns a mutex server for this rank's LOCAL nodes. get/set
// read and write a node's payload by id, reporting false from get if id is
// not a LOCAL node this server owns.
func NewServer[T any](rank int32, c comm.Communicator, epoch func() comm.Epoch, get func(fpid.ID) (T, bool), set func(fpid.ID, T)) *Server[T] {
	return &Server[T]{
		rank:  rank,
		c:     c,
		get:   get,
		set:   set,
		epoch: epoch,
		locks: make(map[fpid.ID]*nodeLock),
	}
}

func (s *Server[T]) lockFor(id fpid.ID) *nodeLock {
	l, ok := s.locks[id]
	if !ok {
		l = &nodeLock{}
		s.locks[id] = l
	}
	return l
}

// HandlePending inspects every other rank for one waiting mutex-kind
// message and processes at most one, reporting whether it found any work.
func (s *Server[T]) HandlePending(ctx context.Context) (bool, error) {
	tag := comm.Tag{Epoch: s.epoch(), Kind: 0}
	kinds := []comm.Kind{
		comm.KindRead, comm.KindAcquire, comm.KindReleaseAcquire,
		comm.KindLock, comm.KindLockShared, comm.KindUnlock, comm.KindUnlockShared,
	}

	for src := int32(0); src < s.c.Size(); src++ {
		if src == s.rank {
			continue
		}
		for _, kind := range kinds {
			tag.Kind = kind
			status, ok, err := s.c.IProbe(src, tag)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			data, err := s.c.Recv(ctx, src, tag)
			if err != nil {
				return false, err
			}
			if err := s.handle(ctx, status.Source, kind, data); err != nil {
				return false, err
			}
			atomic.AddUint64(&s.received, 1)
			return true, nil
		}
	}
	return false, nil
}

func (s *Server[T]) handle(ctx context.Context, src int32, kind comm.Kind, data []byte) error {
	switch kind {
	case comm.KindRead:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		v, _ := s.get(id)
		payload, err := encodeValue(v)
		if err != nil {
			return err
		}
		return s.reply(ctx, src, comm.KindReadResponse, payload)

	case comm.KindAcquire:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		return s.acquireLike(ctx, id, src, true)

	case comm.KindReleaseAcquire:
		head, rest, err := splitLengthPrefixed(data)
		if err != nil {
			return err
		}
		id, err := decodeID(head)
		if err != nil {
			return err
		}
		v, err := decodeValue[T](rest)
		if err != nil {
			return err
		}
		s.set(id, v)
		return s.release(ctx, id, true)

	case comm.KindLock:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		return s.acquireLike(ctx, id, src, false)

	case comm.KindUnlock:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		return s.release(ctx, id, true)

	case comm.KindLockShared:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		return s.acquireShared(ctx, id, src)

	case comm.KindUnlockShared:
		id, err := decodeID(data)
		if err != nil {
			return err
		}
		return s.release(ctx, id, false)
	}
	return nil
}

// acquireLike serves both ACQUIRE (isAcquire=true, replies with payload)
// and LOCK (isAcquire=false, replies with an empty ack): both take
// exclusive state.
func (s *Server[T]) acquireLike(ctx context.Context, id fpid.ID, src int32, isAcquire bool) error {
	l := s.lockFor(id)
	if l.state == stateFree {
		l.state = stateExclusive
		return s.grantExclusive(ctx, id, src, isAcquire)
	}
	l.queue = append(l.queue, pendingRequest{source: src, exclusive: true, isAcquire: isAcquire})
	return nil
}

func (s *Server[T]) acquireShared(ctx context.Context, id fpid.ID, src int32) error {
	l := s.lockFor(id)
	if l.state == stateFree || (l.state == stateShared && len(l.queue) == 0) {
		l.state = stateShared
		l.readers++
		return s.reply(ctx, src, comm.KindLockSharedResponse, nil)
	}
	l.queue = append(l.queue, pendingRequest{source: src, exclusive: false})
	return nil
}

func (s *Server[T]) grantExclusive(ctx context.Context, id fpid.ID, src int32, isAcquire bool) error {
	if !isAcquire {
		return s.reply(ctx, src, comm.KindLockResponse, nil)
	}
	v, _ := s.get(id)
	payload, err := encodeValue(v)
	if err != nil {
		return err
	}
	return s.reply(ctx, src, comm.KindAcquireResponse, payload)
}

// release processes an UNLOCK/RELEASE_ACQUIRE (exclusive=true) or
// UNLOCK_SHARED (exclusive=false) and advances the node's queue: readers
// coalesce (every consecutive queued read is granted together) until the
// next queued write, which is granted alone.
func (s *Server[T]) release(ctx context.Context, id fpid.ID, exclusive bool) error {
	l := s.lockFor(id)
	if exclusive {
		l.state = stateFree
	} else {
		l.readers--
		if l.readers > 0 {
			return nil
		}
		l.state = stateFree
	}
	return s.advance(ctx, id, l)
}

func (s *Server[T]) advance(ctx context.Context, id fpid.ID, l *nodeLock) error {
	for len(l.queue) > 0 {
		next := l.queue[0]
		if next.exclusive {
			if l.state != stateFree {
				return nil
			}
			l.queue = l.queue[1:]
			l.state = stateExclusive
			return s.grantExclusive(ctx, id, next.source, next.isAcquire)
		}
		if l.state == stateExclusive {
			return nil
		}
		l.queue = l.queue[1:]
		l.state = stateShared
		l.readers++
		if err := s.reply(ctx, next.source, comm.KindLockSharedResponse, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server[T]) reply(ctx context.Context, dest int32, kind comm.Kind, body []byte) error {
	tag := comm.Tag{Epoch: s.epoch(), Kind: kind}
	if err := s.c.Send(ctx, dest, tag, body); err != nil {
		return err
	}
	atomic.AddUint64(&s.sent, 1)
	return nil
}

// Counters reports cumulative messages handled by this server, for the
// termination detector.
func (s *Server[T]) Counters() (sent, received uint64) {
	return atomic.LoadUint64(&s.sent), atomic.LoadUint64(&s.received)
}
