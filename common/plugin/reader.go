package plugin

import (
	"context"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/element"
)

// ReaderTask produces the records of one task.
type ReaderTask interface {
	Init(config config.Configuration) error
	// StartRead sends every record through recordSender and returns. The
	// caller terminates the sender.
	StartRead(ctx context.Context, recordSender RecordSender) error
	Post() error
	Destroy() error
}

// RecordSender hands records to the output channel of a task.
type RecordSender interface {
	SendRecord(record element.Record) error
	Flush() error
	// Terminate ships buffered records and announces the end of the stream.
	Terminate() error
	// Shutdown releases the channel without waiting for the consumer.
	Shutdown() error
}
