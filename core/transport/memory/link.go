// Package memory connects an output channel to an input channel in the same
// process.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/compression"
	"github.com/longkeyy/go-dataflow/core/transport"
)

// Option configures a Link.
type Option func(*Link)

// WithSettings sizes the buffer pool from channel settings.
func WithSettings(s channel.Settings) Option {
	return func(l *Link) {
		l.poolSize = s.PoolSize
		l.bufferSize = s.BufferSize
		l.compressed = s.Compression != compression.None
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Link is an in-process broker pair. Filled pairs written through Output are
// consumed through Input in FIFO order and return to a shared pool.
type Link struct {
	poolSize   int
	bufferSize int
	compressed bool
	logger     *zap.Logger

	pool     *buffer.Pool
	toInput  *transport.Inbox
	toOutput *transport.Inbox
	input    *InputBroker
	output   *OutputBroker

	closeOnce sync.Once
}

func NewLink(opts ...Option) *Link {
	l := &Link{
		poolSize:   channel.DefaultPoolSize,
		bufferSize: channel.DefaultBufferSize,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pool = buffer.NewPool(l.poolSize, l.bufferSize, l.compressed)
	l.toInput = transport.NewInbox(l.pool, l.logger)
	l.toOutput = transport.NewInbox(nil, l.logger)
	l.input = &InputBroker{link: l}
	l.output = &OutputBroker{link: l}
	return l
}

// Input returns the broker for the input channel.
func (l *Link) Input() *InputBroker { return l.input }

// Output returns the broker for the output channel.
func (l *Link) Output() *OutputBroker { return l.output }

// Fail reports a transport fault to the input side.
func (l *Link) Fail(err error) { l.toInput.Fail(err) }

// Stats is the buffer accounting of a link.
type Stats struct {
	Pool  buffer.Stats
	Inbox transport.InboxStats
}

func (l *Link) Stats() Stats {
	return Stats{Pool: l.pool.Stats(), Inbox: l.toInput.Stats()}
}

// Close stops event delivery and reclaims queued buffers.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.toInput.Close()
		l.toOutput.Close()
		st := l.pool.Stats()
		l.logger.Debug("Memory link closed",
			zap.Int64("acquired", st.Acquired),
			zap.Int64("released", st.Released),
			zap.Int64("leased", st.Leased))
	})
	return nil
}

// InputBroker implements channel.Broker.
type InputBroker struct {
	link *Link
}

var _ channel.Broker = (*InputBroker)(nil)

// Attach sets the input channel events are delivered to.
func (b *InputBroker) Attach(h channel.EventHandler) { b.link.toInput.Attach(h) }

func (b *InputBroker) GetReadBufferToConsume() *buffer.Pair {
	return b.link.toInput.GetReadBufferToConsume()
}

func (b *InputBroker) ReleaseConsumedReadBuffer() {
	b.link.toInput.ReleaseConsumedReadBuffer()
}

func (b *InputBroker) TransferEventToOutputChannel(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.link.toOutput.PushEvent(e)
}

// OutputBroker implements channel.OutputBroker.
type OutputBroker struct {
	link *Link
}

var _ channel.OutputBroker = (*OutputBroker)(nil)

// Attach sets the output channel events are delivered to.
func (b *OutputBroker) Attach(h channel.EventHandler) { b.link.toOutput.Attach(h) }

func (b *OutputBroker) RequestEmptyWriteBuffers(ctx context.Context) (*buffer.Pair, error) {
	return b.link.pool.Get(ctx)
}

func (b *OutputBroker) ReleaseWriteBuffers(ctx context.Context, pair *buffer.Pair) error {
	if err := b.link.toInput.PushPair(pair); err != nil {
		b.link.pool.Put(pair)
		return err
	}
	return nil
}

func (b *OutputBroker) RecycleWriteBuffers(pair *buffer.Pair) { b.link.pool.Put(pair) }

func (b *OutputBroker) TransferEventToInputChannel(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.link.toInput.PushEvent(e)
}
