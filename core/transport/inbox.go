// Package transport holds the delivery queue shared by the channel brokers.
package transport

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/channel"
)

// ErrClosed is returned by brokers used after Close.
var ErrClosed = errors.New("transport: closed")

// Inbox queues the buffers and events arriving for one channel end and hands
// them over in arrival order. Buffers become visible to the consumer as soon
// as they arrive. An event is delivered to the attached handler, on the
// inbox goroutine, only after every buffer queued before it has been consumed
// and released, so a close or compression event never overtakes data.
type Inbox struct {
	pool   *buffer.Pool
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []envelope
	ready   []*buffer.Pair
	held    *buffer.Pair
	handler channel.EventHandler
	fault   error
	stopped bool
	done    chan struct{}

	acquired int64
	released int64
}

type envelope struct {
	pair  *buffer.Pair
	event event.Event
}

// NewInbox starts an inbox whose buffers return to pool. pool may be nil for
// an inbox that only carries events.
func NewInbox(pool *buffer.Pool, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Inbox{pool: pool, logger: logger, done: make(chan struct{})}
	b.cond = sync.NewCond(&b.mu)
	go b.run()
	return b
}

// Attach sets the handler events and faults are delivered to. A fault reported
// before Attach is delivered immediately.
func (b *Inbox) Attach(h channel.EventHandler) {
	b.mu.Lock()
	b.handler = h
	fault := b.fault
	b.cond.Broadcast()
	b.mu.Unlock()
	if fault != nil {
		h.ReportIOException(fault)
	}
}

// PushPair queues a filled pair leased from the inbox pool.
func (b *Inbox) PushPair(pair *buffer.Pair) error {
	return b.push(envelope{pair: pair})
}

func (b *Inbox) PushEvent(e event.Event) error {
	return b.push(envelope{event: e})
}

func (b *Inbox) push(env envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrClosed
	}
	b.pending = append(b.pending, env)
	b.cond.Broadcast()
	return nil
}

// Fail reports a transport error to the handler.
func (b *Inbox) Fail(err error) {
	b.mu.Lock()
	if b.fault == nil {
		b.fault = err
	}
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h.ReportIOException(err)
	}
}

func (b *Inbox) run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for !b.stopped && len(b.pending) == 0 {
			b.cond.Wait()
		}
		if b.stopped {
			b.mu.Unlock()
			return
		}

		env := b.pending[0]
		if env.pair != nil {
			b.pending = b.pending[1:]
			b.ready = append(b.ready, env.pair)
			h := b.handler
			b.mu.Unlock()
			if l, ok := h.(channel.DataListener); ok {
				l.NotifyDataAvailable()
			}
			continue
		}

		for !b.stopped && (b.handler == nil || len(b.ready) > 0 || b.held != nil) {
			b.cond.Wait()
		}
		if b.stopped {
			b.mu.Unlock()
			return
		}
		b.pending = b.pending[1:]
		h := b.handler
		b.mu.Unlock()
		h.ProcessEvent(env.event)
	}
}

// GetReadBufferToConsume returns the oldest ready pair or nil. Asking for a
// pair while holding one panics.
func (b *Inbox) GetReadBufferToConsume() *buffer.Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held != nil {
		panic("transport: buffer requested while another is held")
	}
	if len(b.ready) == 0 {
		return nil
	}
	b.held = b.ready[0]
	b.ready[0] = nil
	b.ready = b.ready[1:]
	b.acquired++
	return b.held
}

// ReleaseConsumedReadBuffer returns the held pair to the pool.
func (b *Inbox) ReleaseConsumedReadBuffer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held == nil {
		panic("transport: release without a held buffer")
	}
	b.pool.Put(b.held)
	b.held = nil
	b.released++
	b.cond.Broadcast()
}

// Close stops delivery and returns every queued pair to the pool. A pair held
// by the consumer stays leased until it is released.
func (b *Inbox) Close() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.stopped = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for _, pair := range b.ready {
		b.pool.Put(pair)
		dropped++
	}
	for _, env := range b.pending {
		if env.pair != nil {
			b.pool.Put(env.pair)
			dropped++
		}
	}
	b.ready, b.pending = nil, nil
	if dropped > 0 {
		b.logger.Debug("Dropped undelivered buffers", zap.Int("buffers", dropped))
	}
}

// InboxStats is the buffer accounting of an inbox.
type InboxStats struct {
	Queued   int
	Ready    int
	Acquired int64
	Released int64
	Held     bool
}

func (b *Inbox) Stats() InboxStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	queued := len(b.ready)
	for _, env := range b.pending {
		if env.pair != nil {
			queued++
		}
	}
	return InboxStats{Queued: queued, Ready: len(b.ready), Acquired: b.acquired, Released: b.released, Held: b.held != nil}
}
