// Package channel implements the byte-buffered channels that carry a record
// stream from a producing task to a consuming task.
//
// An InputChannel borrows one buffer pair at a time from a Broker, optionally
// decompresses it, and decodes length-prefixed records from it. ReadRecord
// never blocks; the close handshake is driven by events from the paired
// OutputChannel.
package channel

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a channel. Both ends of a connection share the same ID.
type ID string

// NewID returns a random channel ID.
func NewID() ID { return ID(uuid.NewString()) }

func (id ID) String() string { return string(id) }

// Type is the kind of connection behind a channel.
type Type int

const (
	Network Type = iota
	InMemory
	File
)

func (t Type) String() string {
	switch t {
	case Network:
		return "network"
	case InMemory:
		return "inmemory"
	case File:
		return "file"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType parses the configuration form of a channel type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "network":
		return Network, nil
	case "", "inmemory", "memory":
		return InMemory, nil
	case "file":
		return File, nil
	default:
		return 0, fmt.Errorf("unknown channel type %q", s)
	}
}

// hasPeer reports whether the other end of the channel must be told about
// closing.
func (t Type) hasPeer() bool { return t == Network || t == InMemory }

// State is the lifecycle state of a channel.
type State int

const (
	Open State = iota
	Closing
	Closed
	Faulted
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status tells the caller of ReadRecord what happened.
type Status int

const (
	// RecordAvailable means Result.Record holds the next record.
	RecordAvailable Status = iota
	// NoRecordYet means nothing is ready; the caller should retry later.
	NoRecordYet
	// EndOfStream means the channel is closed and fully drained.
	EndOfStream
)

func (s Status) String() string {
	switch s {
	case RecordAvailable:
		return "record"
	case NoRecordYet:
		return "no record yet"
	case EndOfStream:
		return "end of stream"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one ReadRecord call.
type Result[T any] struct {
	Status Status
	Record T
}
