// Package inbox implements the rendezvous mailbox shared by every
// comm.Communicator transport: a set of pending envelopes waiting to be
// matched by a Recv(src, tag) call, plus a condition variable so Recv can
// block until a match appears and IProbe can peek without consuming.
package inbox

import (
	"context"
	"sync"

	"github.com/fpmas-go/fpmas/comm"
)

// Envelope is one in-flight message sitting in a mailbox.
type Envelope struct {
	From int32
	Tag  comm.Tag
	Data []byte
	// Done, if non-nil, is closed once a Recv consumes this envelope.
	// Transports that need ISend/Test to observe peer consumption (as
	// opposed to local queuing) set this.
	Done chan struct{}
}

// Mailbox is a single rank's pending-message queue.
type Mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Envelope
}

func New() *Mailbox {
	mb := &Mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// Post enqueues an envelope and wakes any blocked Recv.
func (mb *Mailbox) Post(env *Envelope) {
	mb.mu.Lock()
	mb.pending = append(mb.pending, env)
	mb.cond.Broadcast()
	mb.mu.Unlock()
}

// Recv blocks until an envelope from src with the given tag is pending,
// removes it, closes its Done channel if set, and returns its data.
func (mb *Mailbox) Recv(ctx context.Context, src int32, tag comm.Tag) ([]byte, error) {
	stop := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				mb.mu.Lock()
				mb.cond.Broadcast()
				mb.mu.Unlock()
			case <-stop:
			}
		}()
		defer close(stop)
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		for i, env := range mb.pending {
			if env.From == src && env.Tag == tag {
				mb.pending = append(mb.pending[:i], mb.pending[i+1:]...)
				if env.Done != nil {
					close(env.Done)
				}
				return env.Data, nil
			}
		}
		mb.cond.Wait()
	}
}

// Peek reports whether an envelope from src with the given tag is
// pending, without consuming it.
func (mb *Mailbox) Peek(src int32, tag comm.Tag) (comm.Status, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, env := range mb.pending {
		if env.From == src && env.Tag == tag {
			return comm.Status{Source: src, Tag: tag, Size: len(env.Data)}, true
		}
	}
	return comm.Status{}, false
}
