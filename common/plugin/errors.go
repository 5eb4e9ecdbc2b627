package plugin

import "errors"

var (
	// ErrChannelClosed is returned by GetFromReader once every record has
	// been received.
	ErrChannelClosed = errors.New("channel is closed")
	ErrRecordNil     = errors.New("record is nil")
)
