package channel

import (
	"context"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/core/buffer"
)

// Broker supplies filled buffer pairs to an input channel and carries its
// events to the paired output channel.
type Broker interface {
	// GetReadBufferToConsume returns the next filled pair, or nil if none is
	// ready. It must not block.
	GetReadBufferToConsume() *buffer.Pair
	// ReleaseConsumedReadBuffer returns the pair obtained last.
	ReleaseConsumedReadBuffer()
	TransferEventToOutputChannel(ctx context.Context, e event.Event) error
}

// OutputBroker supplies empty buffer pairs to an output channel and ships
// filled ones to the paired input channel.
type OutputBroker interface {
	// RequestEmptyWriteBuffers blocks until a pair is free or ctx ends.
	RequestEmptyWriteBuffers(ctx context.Context) (*buffer.Pair, error)
	// ReleaseWriteBuffers transfers a filled pair. The broker owns the pair
	// afterwards.
	ReleaseWriteBuffers(ctx context.Context, pair *buffer.Pair) error
	// RecycleWriteBuffers returns a pair that was never filled.
	RecycleWriteBuffers(pair *buffer.Pair)
	TransferEventToInputChannel(ctx context.Context, e event.Event) error
}

// EventHandler is the side of a channel a transport talks to.
type EventHandler interface {
	ProcessEvent(e event.Event)
	ReportIOException(err error)
}

// DataListener is implemented by handlers that want to hear about newly
// queued buffers.
type DataListener interface {
	NotifyDataAvailable()
}

// Gate owns a set of input channels.
type Gate interface {
	// NotifyRecordIsAvailable wakes a consumer that may be waiting on the
	// channel at index.
	NotifyRecordIsAvailable(index int)
	DeliverEvent(e event.TaskEvent)
}
