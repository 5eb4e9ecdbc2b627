package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/compression"
)

var errSharedPair = errors.New("channel: broker supplied an uncompressed pair to a compressing channel")

// OutputChannel is the producing end of a byte-buffered channel. WriteRecord,
// Flush, SwitchCompressionLibrary and Close are called by a single producer
// goroutine.
type OutputChannel[T any] struct {
	id     ID
	typ    Type
	level  compression.Level
	logger *zap.Logger
	stats  *statistics.Communication

	serializer   *SerializationBuffer[T]
	compressor   compression.Compressor
	shutdownOnce sync.Once

	broker OutputBroker
	pair   *buffer.Pair

	mu             sync.Mutex
	fault          error
	closeRequested bool
	activated      chan struct{}
	consumerGone   context.Context
	consumerCancel context.CancelFunc
}

func NewOutputChannel[T any](serializer serde.Serializer[T], opts ...Option) (*OutputChannel[T], error) {
	o := newOptions(opts)
	compressor := o.compressor
	if compressor == nil {
		var err error
		compressor, err = compression.NewCompressor(o.level, compression.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
	}
	consumerGone, consumerCancel := context.WithCancel(context.Background())
	return &OutputChannel[T]{
		id:             o.id,
		typ:            o.typ,
		level:          o.level,
		logger:         o.logger.With(zap.String("channelId", string(o.id))),
		stats:          o.stats,
		serializer:     NewSerializationBuffer(serializer, o.maxRecordSize),
		compressor:     compressor,
		activated:      make(chan struct{}),
		consumerGone:   consumerGone,
		consumerCancel: consumerCancel,
	}, nil
}

func (c *OutputChannel[T]) ID() ID                              { return c.id }
func (c *OutputChannel[T]) Type() Type                          { return c.typ }
func (c *OutputChannel[T]) CompressionLevel() compression.Level { return c.level }

// SetBroker attaches the broker. It must be called before the first write.
func (c *OutputChannel[T]) SetBroker(b OutputBroker) { c.broker = b }

// Activated is closed once the input channel asked for data.
func (c *OutputChannel[T]) Activated() <-chan struct{} { return c.activated }

// ConsumerClosed is closed once the input channel reported that it is done.
func (c *OutputChannel[T]) ConsumerClosed() <-chan struct{} { return c.consumerGone.Done() }

func (c *OutputChannel[T]) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fault != nil {
		return c.fault
	}
	if c.closeRequested {
		return ErrClosed
	}
	if c.consumerGone.Err() != nil {
		return ErrConsumerClosed
	}
	if c.broker == nil {
		return ErrNoBroker
	}
	return nil
}

// WriteRecord serializes record into the current buffer, shipping buffers as
// they fill up.
func (c *OutputChannel[T]) WriteRecord(ctx context.Context, record T) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.serializer.SerializeRecord(record); err != nil {
		return err
	}
	size := int64(len(c.serializer.data))
	for {
		if c.pair == nil {
			pair, err := c.requestWriteBuffers(ctx)
			if err != nil {
				c.serializer.Clear()
				return fmt.Errorf("request write buffers: %w", err)
			}
			if c.compressor != nil && pair.Shared() {
				c.broker.RecycleWriteBuffers(pair)
				c.serializer.Clear()
				return errSharedPair
			}
			c.pair = pair
		}
		if c.serializer.Read(c.pair.Uncompressed) {
			break
		}
		if err := c.Flush(ctx); err != nil {
			c.serializer.Clear()
			return err
		}
	}
	c.stats.IncreaseCounter(statistics.ChannelRecordsWritten, 1)
	c.stats.IncreaseCounter(statistics.ChannelBytesWritten, size)
	return nil
}

// requestWriteBuffers waits for an empty pair until ctx ends or the input
// channel closes its end.
func (c *OutputChannel[T]) requestWriteBuffers(ctx context.Context) (*buffer.Pair, error) {
	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(c.consumerGone, func() { cancel(ErrConsumerClosed) })
	defer stop()
	pair, err := c.broker.RequestEmptyWriteBuffers(rctx)
	if err != nil && errors.Is(context.Cause(rctx), ErrConsumerClosed) {
		return nil, ErrConsumerClosed
	}
	return pair, err
}

// Flush ships the current buffer if it holds any data.
func (c *OutputChannel[T]) Flush(ctx context.Context) error {
	pair := c.pair
	if pair == nil {
		return nil
	}
	if pair.Uncompressed.Len() == 0 {
		return nil
	}
	c.pair = nil
	if c.compressor != nil {
		c.compressor.SetUncompressedDataBuffer(pair.Uncompressed)
		c.compressor.SetCompressedDataBuffer(pair.Compressed)
		if err := c.compressor.Compress(); err != nil {
			c.broker.RecycleWriteBuffers(pair)
			return fmt.Errorf("compress buffer: %w", err)
		}
	} else if !pair.Shared() {
		pair.Compressed.Reset()
		if _, err := pair.Compressed.Write(pair.Uncompressed.Bytes()); err != nil {
			c.broker.RecycleWriteBuffers(pair)
			return fmt.Errorf("copy buffer: %w", err)
		}
	}
	if err := c.broker.ReleaseWriteBuffers(ctx, pair); err != nil {
		return fmt.Errorf("release write buffers: %w", err)
	}
	c.stats.IncreaseCounter(statistics.ChannelBuffersSent, 1)
	return nil
}

// SwitchCompressionLibrary ships the current buffer and tells the input
// channel that later buffers use the library at index.
func (c *OutputChannel[T]) SwitchCompressionLibrary(ctx context.Context, index int) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.compressor == nil {
		return compression.ErrSwitchNotAllowed
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	if err := c.compressor.SetCurrentInternalCompressionLibraryIndex(index); err != nil {
		return err
	}
	return c.broker.TransferEventToInputChannel(ctx, event.CompressionEvent{LibraryIndex: index})
}

// TransferEvent sends a task event to the input channel, in order with the
// data written before it.
func (c *OutputChannel[T]) TransferEvent(ctx context.Context, e event.TaskEvent) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	return c.broker.TransferEventToInputChannel(ctx, e)
}

// Close ships the remaining data and, for channels with a peer, sends the
// close event that lets the input channel finish. Close is idempotent.
func (c *OutputChannel[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closeRequested {
		c.mu.Unlock()
		return nil
	}
	fault := c.fault
	c.mu.Unlock()
	if fault != nil {
		return fault
	}
	if c.broker == nil {
		return ErrNoBroker
	}

	if err := c.Flush(ctx); err != nil {
		return err
	}
	if c.pair != nil {
		c.broker.RecycleWriteBuffers(c.pair)
		c.pair = nil
	}
	if c.typ.hasPeer() {
		if err := c.broker.TransferEventToInputChannel(ctx, event.CloseEvent{}); err != nil {
			return fmt.Errorf("send close event: %w", err)
		}
	}

	c.mu.Lock()
	c.closeRequested = true
	c.mu.Unlock()
	c.logger.Debug("Output channel closed", zap.Stringer("type", c.typ))
	return nil
}

// ProcessEvent handles an event sent by the input channel.
func (c *OutputChannel[T]) ProcessEvent(e event.Event) {
	switch e := e.(type) {
	case event.ActivateEvent:
		c.mu.Lock()
		closeOnce(c.activated)
		c.mu.Unlock()
	case event.CloseEvent:
		c.consumerCancel()
	case event.CompressionEvent, event.TaskEvent, event.UnknownEvent:
		c.unexpectedEvent(e)
	default:
		c.unexpectedEvent(e)
	}
}

func (c *OutputChannel[T]) unexpectedEvent(e event.Event) {
	c.stats.IncreaseCounter(statistics.ChannelUnknownEvents, 1)
	if e == nil {
		c.logger.Warn("Received nil event")
		return
	}
	c.logger.Warn("Received unexpected event", zap.Stringer("kind", e.Kind()), zap.Any("event", e))
}

// ReportIOException records a transport error. The first one is returned by
// every later call.
func (c *OutputChannel[T]) ReportIOException(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	first := c.fault == nil
	if first {
		c.fault = &FaultError{ChannelID: c.id, Err: err}
	}
	c.mu.Unlock()
	if first {
		c.stats.IncreaseCounter(statistics.ChannelFaults, 1)
		c.stats.SetThrowable(err)
		c.logger.Error("Output channel transport fault", zap.Error(err))
	}
}

// ReleaseResources returns an unshipped buffer and shuts the compressor down.
func (c *OutputChannel[T]) ReleaseResources() {
	if c.pair != nil && c.broker != nil {
		c.broker.RecycleWriteBuffers(c.pair)
		c.pair = nil
	}
	c.serializer.Clear()
	c.shutdownOnce.Do(func() {
		if c.compressor != nil {
			c.compressor.Shutdown(string(c.id))
		}
	})
}

// closeOnce must be called with the owning mutex held.
func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
