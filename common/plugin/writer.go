package plugin

import (
	"context"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/element"
)

// WriterTask consumes the records of one task.
type WriterTask interface {
	Init(config config.Configuration) error
	Prepare() error
	// StartWrite reads from recordReceiver until it returns ErrChannelClosed.
	StartWrite(ctx context.Context, recordReceiver RecordReceiver) error
	Post() error
	Destroy() error
}

// RecordReceiver hands records from the input gate of a task.
type RecordReceiver interface {
	GetFromReader() (element.Record, error)
	Shutdown() error
}
