// Package event defines the control events exchanged between the output and
// input side of a byte-buffered channel.
//
// The set of events is closed: every concrete type lives in this package and
// implements the unexported marker method. Events arriving from the wire with a
// kind this package does not know decode to *UnknownEvent so receivers can
// report them instead of failing.
package event

import (
	"errors"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Kind tags an event on the wire.
type Kind uint8

const (
	KindClose Kind = iota + 1
	KindActivate
	KindCompression
	KindTask
)

func (k Kind) String() string {
	switch k {
	case KindClose:
		return "close"
	case KindActivate:
		return "activate"
	case KindCompression:
		return "compression"
	case KindTask:
		return "task"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is implemented by CloseEvent, ActivateEvent, CompressionEvent,
// TaskEvent and UnknownEvent.
type Event interface {
	Kind() Kind
	isEvent()
}

// CloseEvent announces that the sending side considers the channel finished.
type CloseEvent struct{}

// ActivateEvent asks the output side to start transmitting.
type ActivateEvent struct{}

// CompressionEvent announces which internal compression library the producer
// uses from now on.
type CompressionEvent struct {
	LibraryIndex int
}

// TaskEvent carries an opaque payload for the consuming task.
type TaskEvent struct {
	Name    string
	Payload []byte
}

// UnknownEvent is a decoded event of an unrecognized kind.
type UnknownEvent struct {
	Tag  Kind
	Data []byte
}

func (CloseEvent) Kind() Kind       { return KindClose }
func (ActivateEvent) Kind() Kind    { return KindActivate }
func (CompressionEvent) Kind() Kind { return KindCompression }
func (TaskEvent) Kind() Kind        { return KindTask }
func (e UnknownEvent) Kind() Kind   { return e.Tag }

func (CloseEvent) isEvent()       {}
func (ActivateEvent) isEvent()    {}
func (CompressionEvent) isEvent() {}
func (TaskEvent) isEvent()        {}
func (UnknownEvent) isEvent()     {}

func (e CompressionEvent) String() string {
	return fmt.Sprintf("compression(library=%d)", e.LibraryIndex)
}

func (e TaskEvent) String() string {
	return fmt.Sprintf("task(%s, %d bytes)", e.Name, len(e.Payload))
}

// ErrEmpty is returned when decoding a zero-length event.
var ErrEmpty = errors.New("empty event")

// Marshal appends the wire form of e to dst: one kind byte followed by a
// MessagePack body for events that carry data.
func Marshal(dst []byte, e Event) ([]byte, error) {
	switch e := e.(type) {
	case CloseEvent, ActivateEvent:
		return append(dst, byte(e.Kind())), nil
	case CompressionEvent:
		dst = append(dst, byte(KindCompression))
		return msgp.AppendInt(dst, e.LibraryIndex), nil
	case TaskEvent:
		dst = append(dst, byte(KindTask))
		dst = msgp.AppendString(dst, e.Name)
		return msgp.AppendBytes(dst, e.Payload), nil
	case UnknownEvent:
		dst = append(dst, byte(e.Tag))
		return append(dst, e.Data...), nil
	case nil:
		return nil, errors.New("marshal nil event")
	default:
		return nil, fmt.Errorf("marshal event: unsupported type %T", e)
	}
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	kind, body := Kind(data[0]), data[1:]
	switch kind {
	case KindClose:
		return CloseEvent{}, nil
	case KindActivate:
		return ActivateEvent{}, nil
	case KindCompression:
		index, _, err := msgp.ReadIntBytes(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s event: %w", kind, err)
		}
		return CompressionEvent{LibraryIndex: index}, nil
	case KindTask:
		name, rest, err := msgp.ReadStringBytes(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s event name: %w", kind, err)
		}
		payload, _, err := msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return nil, fmt.Errorf("decode %s event payload: %w", kind, err)
		}
		return TaskEvent{Name: name, Payload: payload}, nil
	default:
		return UnknownEvent{Tag: kind, Data: append([]byte(nil), body...)}, nil
	}
}
