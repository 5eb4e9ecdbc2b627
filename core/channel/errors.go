package channel

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrEndOfStream is returned when reading from a closed channel. It
	// matches io.EOF.
	ErrEndOfStream = fmt.Errorf("channel: end of stream: %w", io.EOF)
	// ErrRecordTooLarge is returned for a length prefix beyond the configured
	// maximum record size.
	ErrRecordTooLarge = errors.New("channel: record exceeds maximum size")
	// ErrNoBroker is returned when a channel is used before a broker is set.
	ErrNoBroker = errors.New("channel: no broker")
	// ErrClosed is returned when writing to a closed output channel.
	ErrClosed = errors.New("channel: closed")
	// ErrConsumerClosed is returned when writing after the input channel
	// closed its end.
	ErrConsumerClosed = errors.New("channel: consumer closed")
)

// FaultError is a transport error reported asynchronously for a channel.
type FaultError struct {
	ChannelID ID
	Err       error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("channel %s: transport fault: %v", e.ChannelID, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
