package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/compression"
)

// InputChannel is the consuming end of a byte-buffered channel.
//
// ReadRecord, IsClosed and Close are called by a single consumer goroutine.
// ProcessEvent, ReportIOException and ReleaseResources may be called from any
// goroutine.
type InputChannel[T any] struct {
	id           ID
	typ          Type
	index        int
	level        compression.Level
	pollInterval time.Duration
	gate         Gate
	logger       *zap.Logger
	stats        *statistics.Communication

	deserializer *DeserializationBuffer[T]
	decompressor compression.Decompressor
	shutdownOnce sync.Once

	// Owned by the consumer goroutine.
	broker       Broker
	compressed   *buffer.Buffer
	uncompressed *buffer.Buffer
	buffered     T
	hasBuffered  bool
	bytesRead    atomic.Int64

	mu     sync.Mutex
	cond   *sync.Cond
	agreed bool
	fault  error
	state  State
	closed bool
}

// NewInputChannel creates the channel at index of gate. Records are decoded
// with deserializer.
func NewInputChannel[T any](gate Gate, index int, deserializer serde.Deserializer[T], opts ...Option) (*InputChannel[T], error) {
	o := newOptions(opts)
	decompressor := o.decompressor
	if decompressor == nil {
		var err error
		decompressor, err = compression.NewDecompressor(o.level, compression.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
	}
	if gate == nil {
		gate = nopGate{}
	}
	c := &InputChannel[T]{
		id:           o.id,
		typ:          o.typ,
		index:        index,
		level:        o.level,
		pollInterval: o.pollInterval,
		gate:         gate,
		logger:       o.logger.With(zap.String("channelId", string(o.id)), zap.Int("gateIndex", index)),
		stats:        o.stats,
		deserializer: NewDeserializationBuffer(deserializer, o.maxRecordSize),
		decompressor: decompressor,
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

func (c *InputChannel[T]) ID() ID                              { return c.id }
func (c *InputChannel[T]) Type() Type                          { return c.typ }
func (c *InputChannel[T]) Index() int                          { return c.index }
func (c *InputChannel[T]) CompressionLevel() compression.Level { return c.level }

// SetBroker attaches the broker. It must be called before the first read.
func (c *InputChannel[T]) SetBroker(b Broker) { c.broker = b }

func (c *InputChannel[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AmountOfDataTransmitted reports the number of bytes decoded so far.
func (c *InputChannel[T]) AmountOfDataTransmitted() int64 { return c.bytesRead.Load() }

// Statistics returns the communication holding the channel counters.
func (c *InputChannel[T]) Statistics() *statistics.Communication { return c.stats }

// ReadRecord returns the next record if one is ready. It never blocks on the
// transport.
func (c *InputChannel[T]) ReadRecord(target T) (Result[T], error) {
	c.mu.Lock()
	fault, closed := c.fault, c.closed
	c.mu.Unlock()
	if fault != nil {
		return Result[T]{}, fault
	}
	if closed {
		return Result[T]{Status: EndOfStream}, ErrEndOfStream
	}

	done, err := c.IsClosed()
	if err != nil {
		return Result[T]{}, err
	}
	if done {
		return Result[T]{Status: EndOfStream}, ErrEndOfStream
	}
	return c.deserializeNextRecord(target)
}

func (c *InputChannel[T]) deserializeNextRecord(target T) (Result[T], error) {
	if c.hasBuffered {
		record := c.buffered
		var zero T
		c.buffered, c.hasBuffered = zero, false
		c.stats.IncreaseCounter(statistics.ChannelRecordsRead, 1)
		return Result[T]{Status: RecordAvailable, Record: record}, nil
	}

	if c.uncompressed == nil {
		c.mu.Lock()
		if c.fault != nil {
			err := c.fault
			c.mu.Unlock()
			return Result[T]{}, err
		}
		if c.broker == nil {
			c.mu.Unlock()
			return Result[T]{}, ErrNoBroker
		}
		c.requestReadBuffersFromBroker()
		c.mu.Unlock()

		if c.uncompressed == nil {
			return Result[T]{Status: NoRecordYet}, nil
		}
		if err := c.decompressor.Decompress(); err != nil {
			c.mu.Lock()
			c.releaseConsumedReadBuffer()
			c.mu.Unlock()
			c.ReportIOException(fmt.Errorf("decompress buffer: %w", err))
			c.mu.Lock()
			fault := c.fault
			c.mu.Unlock()
			return Result[T]{}, fault
		}
		if c.level != compression.None {
			c.stats.IncreaseCounter(statistics.ChannelDecompressions, 1)
		}
	}

	before := c.deserializer.Consumed()
	record, ok, err := c.deserializer.ReadData(target, c.uncompressed)
	if n := c.deserializer.Consumed() - before; n > 0 {
		c.bytesRead.Add(n)
		c.stats.IncreaseCounter(statistics.ChannelBytesRead, n)
	}
	if err != nil {
		return Result[T]{}, err
	}

	if c.uncompressed.Remaining() == 0 {
		c.mu.Lock()
		c.releaseConsumedReadBuffer()
		c.mu.Unlock()
		if ok {
			c.buffered, c.hasBuffered = record, true
			c.gate.NotifyRecordIsAvailable(c.index)
		}
		return Result[T]{Status: NoRecordYet}, nil
	}
	if !ok {
		return Result[T]{Status: NoRecordYet}, nil
	}
	c.stats.IncreaseCounter(statistics.ChannelRecordsRead, 1)
	return Result[T]{Status: RecordAvailable, Record: record}, nil
}

// requestReadBuffersFromBroker must be called with c.mu held.
func (c *InputChannel[T]) requestReadBuffersFromBroker() {
	pair := c.broker.GetReadBufferToConsume()
	if pair == nil {
		return
	}
	c.compressed, c.uncompressed = pair.Compressed, pair.Uncompressed
	c.decompressor.SetCompressedDataBuffer(c.compressed)
	c.decompressor.SetUncompressedDataBuffer(c.uncompressed)
	c.stats.IncreaseCounter(statistics.ChannelBuffersAcquired, 1)
}

// releaseConsumedReadBuffer must be called with c.mu held.
func (c *InputChannel[T]) releaseConsumedReadBuffer() {
	c.broker.ReleaseConsumedReadBuffer()
	c.compressed, c.uncompressed = nil, nil
	c.stats.IncreaseCounter(statistics.ChannelBuffersReleased, 1)
}

// IsClosed reports whether the producer agreed to close and every record has
// been delivered. Undelivered data takes precedence over both agreement and a
// pending fault.
func (c *InputChannel[T]) IsClosed() (bool, error) {
	if c.hasBuffered || c.uncompressed != nil {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fault != nil {
		return false, c.fault
	}
	return c.agreed, nil
}

// Close releases the held buffer and, for network channels, drains the
// broker until the producer agrees to close or ctx ends. Channels with a
// peer then send it a close event. Close is idempotent.
func (c *InputChannel[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.state == Open {
		c.state = Closing
	}
	c.deserializer.Clear()
	if c.uncompressed != nil {
		c.releaseConsumedReadBuffer()
	}

	var err error
	if c.typ == Network && !c.agreed && c.broker != nil {
		err = c.drain(ctx)
		var zero T
		c.buffered, c.hasBuffered = zero, false
	}
	fault := c.fault
	if err != nil && fault == nil {
		c.state = Open
		c.mu.Unlock()
		return err
	}
	c.closed = true
	if fault == nil {
		c.state = Closed
	}
	c.mu.Unlock()

	if fault != nil {
		c.logger.Debug("Input channel closed after fault", zap.Error(fault))
		return fault
	}
	if c.typ.hasPeer() {
		if err := c.transferEvent(ctx, event.CloseEvent{}); err != nil {
			return fmt.Errorf("send close event: %w", err)
		}
	}
	c.logger.Debug("Input channel closed",
		zap.Stringer("type", c.typ),
		zap.Int64("bytesRead", c.bytesRead.Load()))
	return nil
}

// drain polls the broker, returning whatever it offers, until agreement is
// reached. It must be called with c.mu held; the lock is released while
// waiting.
func (c *InputChannel[T]) drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.wake)
	defer stop()

	for !c.agreed {
		if c.fault != nil {
			return c.fault
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for {
			c.requestReadBuffersFromBroker()
			if c.uncompressed == nil {
				break
			}
			c.releaseConsumedReadBuffer()
		}
		if c.agreed {
			break
		}
		timer := time.AfterFunc(c.pollInterval, c.wake)
		c.cond.Wait()
		timer.Stop()
	}
	return nil
}

func (c *InputChannel[T]) wake() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// ProcessEvent handles an event sent by the output channel.
func (c *InputChannel[T]) ProcessEvent(e event.Event) {
	switch e := e.(type) {
	case event.CloseEvent:
		c.mu.Lock()
		c.agreed = true
		c.cond.Broadcast()
		c.mu.Unlock()
		c.gate.NotifyRecordIsAvailable(c.index)
	case event.TaskEvent:
		c.gate.DeliverEvent(e)
	case event.CompressionEvent:
		if c.level == compression.None {
			c.unexpectedEvent(e)
			return
		}
		if err := c.decompressor.SetCurrentInternalDecompressionLibraryIndex(e.LibraryIndex); err != nil {
			c.ReportIOException(fmt.Errorf("switch decompression library: %w", err))
			return
		}
		c.logger.Debug("Decompression library switched",
			zap.String("library", compression.LibraryName(e.LibraryIndex)))
	case event.ActivateEvent, event.UnknownEvent:
		c.unexpectedEvent(e)
	default:
		c.unexpectedEvent(e)
	}
}

func (c *InputChannel[T]) unexpectedEvent(e event.Event) {
	c.stats.IncreaseCounter(statistics.ChannelUnknownEvents, 1)
	if e == nil {
		c.logger.Warn("Received nil event")
		return
	}
	c.logger.Warn("Received unexpected event", zap.Stringer("kind", e.Kind()), zap.Any("event", e))
}

// NotifyDataAvailable is called by the broker when a buffer was queued.
func (c *InputChannel[T]) NotifyDataAvailable() {
	c.wake()
	c.gate.NotifyRecordIsAvailable(c.index)
}

// ReportIOException records a transport error. The first error is kept and
// returned by every later ReadRecord, IsClosed and Close.
func (c *InputChannel[T]) ReportIOException(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	first := c.fault == nil
	if first {
		c.fault = &FaultError{ChannelID: c.id, Err: err}
		c.state = Faulted
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	if first {
		c.stats.IncreaseCounter(statistics.ChannelFaults, 1)
		c.stats.SetThrowable(err)
		c.logger.Error("Input channel transport fault", zap.Error(err))
		c.gate.NotifyRecordIsAvailable(c.index)
	}
}

// ReleaseResources tears the channel down unconditionally. It is safe to
// call while Close is waiting for agreement.
func (c *InputChannel[T]) ReleaseResources() {
	c.mu.Lock()
	c.agreed = true
	c.deserializer.Clear()
	c.cond.Broadcast()
	c.mu.Unlock()

	c.shutdownOnce.Do(func() {
		c.decompressor.Shutdown(string(c.id))
	})
}

// Activate asks the output channel to start transmitting.
func (c *InputChannel[T]) Activate(ctx context.Context) error {
	return c.transferEvent(ctx, event.ActivateEvent{})
}

func (c *InputChannel[T]) transferEvent(ctx context.Context, e event.Event) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	return c.broker.TransferEventToOutputChannel(ctx, e)
}

// InputStats is a snapshot of the channel state.
type InputStats struct {
	State             State
	Agreed            bool
	HoldsBuffer       bool
	HasBufferedRecord bool
	BytesRead         int64
}

// Stats must be called from the consumer goroutine.
func (c *InputChannel[T]) Stats() InputStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return InputStats{
		State:             c.state,
		Agreed:            c.agreed,
		HoldsBuffer:       c.uncompressed != nil,
		HasBufferedRecord: c.hasBuffered,
		BytesRead:         c.bytesRead.Load(),
	}
}

type nopGate struct{}

func (nopGate) NotifyRecordIsAvailable(int)  {}
func (nopGate) DeliverEvent(event.TaskEvent) {}
