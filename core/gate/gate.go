// Package gate multiplexes the input channels of one consumer.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/core/channel"
)

// Option configures an InputGate.
type Option func(*options)

type options struct {
	pollInterval time.Duration
	logger       *zap.Logger
}

// WithPollInterval sets how often ReadRecord polls the channels when no
// wake-up arrives.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// InputGate reads records from a set of input channels in round-robin order.
// ReadRecord must be called from a single goroutine.
type InputGate[T any] struct {
	opts options

	mu        sync.RWMutex
	channels  []*channel.InputChannel[T]
	done      []bool
	listeners []func(event.TaskEvent)

	wake chan struct{}
	next int
	open int
}

var _ channel.Gate = (*InputGate[any])(nil)

func New[T any](opts ...Option) *InputGate[T] {
	o := options{pollInterval: channel.DefaultPollInterval, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &InputGate[T]{opts: o, wake: make(chan struct{}, 1)}
}

// AddChannel creates an input channel owned by the gate. Its index is the
// number of channels added before it.
func (g *InputGate[T]) AddChannel(deserializer serde.Deserializer[T], opts ...channel.Option) (*channel.InputChannel[T], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, err := channel.NewInputChannel(g, len(g.channels), deserializer, opts...)
	if err != nil {
		return nil, err
	}
	g.channels = append(g.channels, ch)
	g.done = append(g.done, false)
	g.open++
	return ch, nil
}

// Channels returns the channels in index order.
func (g *InputGate[T]) Channels() []*channel.InputChannel[T] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*channel.InputChannel[T](nil), g.channels...)
}

// Subscribe registers fn for task events arriving on any channel. fn runs on
// the delivering transport goroutine.
func (g *InputGate[T]) Subscribe(fn func(event.TaskEvent)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

func (g *InputGate[T]) NotifyRecordIsAvailable(int) {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *InputGate[T]) DeliverEvent(e event.TaskEvent) {
	g.mu.RLock()
	listeners := g.listeners
	g.mu.RUnlock()
	if len(listeners) == 0 {
		g.opts.logger.Debug("Task event without listener", zap.Stringer("event", e))
		return
	}
	for _, fn := range listeners {
		fn(e)
	}
}

// ReadRecord returns the next record of any channel. It blocks until a
// record arrives, a channel fails or ctx ends, and returns
// channel.ErrEndOfStream once every channel has ended.
func (g *InputGate[T]) ReadRecord(ctx context.Context, target T) (T, error) {
	var zero T
	ticker := time.NewTicker(g.opts.pollInterval)
	defer ticker.Stop()
	for {
		g.mu.RLock()
		channels := g.channels
		g.mu.RUnlock()
		if len(channels) == 0 || g.open == 0 {
			return zero, channel.ErrEndOfStream
		}

		for range channels {
			i := g.next
			g.next = (g.next + 1) % len(channels)
			if g.done[i] {
				continue
			}
			res, err := channels[i].ReadRecord(target)
			if errors.Is(err, channel.ErrEndOfStream) {
				g.done[i] = true
				g.open--
				g.opts.logger.Debug("Input channel ended", zap.Int("gateIndex", i))
				continue
			}
			if err != nil {
				return zero, err
			}
			if res.Status == channel.RecordAvailable {
				return res.Record, nil
			}
		}
		if g.open == 0 {
			return zero, channel.ErrEndOfStream
		}

		select {
		case <-g.wake:
		case <-ticker.C:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Activate asks the producer of every channel to start transmitting.
func (g *InputGate[T]) Activate(ctx context.Context) error {
	var err error
	for _, ch := range g.Channels() {
		err = multierr.Append(err, ch.Activate(ctx))
	}
	return err
}

// Close closes every channel and returns their combined errors.
func (g *InputGate[T]) Close(ctx context.Context) error {
	var err error
	for _, ch := range g.Channels() {
		err = multierr.Append(err, ch.Close(ctx))
	}
	return err
}

// ReleaseResources releases every channel unconditionally.
func (g *InputGate[T]) ReleaseResources() {
	for _, ch := range g.Channels() {
		ch.ReleaseResources()
	}
}
