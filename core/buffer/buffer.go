// Package buffer provides the fixed-capacity byte buffers that channels borrow
// from a broker, and the pool that owns them.
package buffer

import (
	"errors"
	"io"
)

// ErrFull is returned by Write when the buffer has no room for all of p.
var ErrFull = errors.New("buffer: insufficient capacity")

// Buffer is a byte region of fixed capacity. Bytes in [0, limit) are valid
// data; the read cursor pos moves through them. A Buffer is not safe for
// concurrent use.
type Buffer struct {
	data  []byte
	pos   int
	limit int
}

func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Wrap returns a buffer whose valid data is p. The buffer aliases p.
func Wrap(p []byte) *Buffer {
	return &Buffer{data: p, limit: len(p)}
}

func (b *Buffer) Cap() int { return len(b.data) }

// Len reports the number of valid bytes, read or not.
func (b *Buffer) Len() int { return b.limit }

// Remaining reports the number of valid bytes not yet read.
func (b *Buffer) Remaining() int { return b.limit - b.pos }

// Consumed reports the number of bytes read so far.
func (b *Buffer) Consumed() int { return b.pos }

// Bytes returns the unread part of the buffer without advancing.
func (b *Buffer) Bytes() []byte { return b.data[b.pos:b.limit] }

// Next returns the next n unread bytes, or fewer if fewer remain, and advances
// past them.
func (b *Buffer) Next(n int) []byte {
	if r := b.Remaining(); n > r {
		n = r
	}
	p := b.data[b.pos : b.pos+n]
	b.pos += n
	return p
}

// Read implements io.Reader over the unread bytes.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Remaining() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:b.limit])
	b.pos += n
	return n, nil
}

// Available returns the writable region after the valid data.
func (b *Buffer) Available() []byte { return b.data[b.limit:] }

// Commit marks n bytes of Available as valid data.
func (b *Buffer) Commit(n int) {
	if n < 0 || b.limit+n > len(b.data) {
		panic("buffer: commit out of range")
	}
	b.limit += n
}

// Write appends p to the valid data. It writes nothing and returns ErrFull if
// p does not fit.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > len(b.data)-b.limit {
		return 0, ErrFull
	}
	n := copy(b.data[b.limit:], p)
	b.limit += n
	return n, nil
}

// Reset empties the buffer for reuse.
func (b *Buffer) Reset() {
	b.pos = 0
	b.limit = 0
}
