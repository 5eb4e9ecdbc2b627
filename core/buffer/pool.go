package buffer

import (
	"context"
	"sync/atomic"
)

// Pair is the unit borrowed from a broker. Compressed and Uncompressed are the
// same buffer when the channel does not compress.
type Pair struct {
	Compressed   *Buffer
	Uncompressed *Buffer

	leased atomic.Bool
}

// Shared reports whether both halves are the same buffer.
func (p *Pair) Shared() bool { return p.Compressed == p.Uncompressed }

func (p *Pair) reset() {
	p.Compressed.Reset()
	if !p.Shared() {
		p.Uncompressed.Reset()
	}
}

// CompressedCapacity is the compressed buffer size needed to hold any block of
// size bytes after compression with the registered libraries.
func CompressedCapacity(size int) int {
	return size + size/6 + 64
}

// Pool owns a fixed set of pairs.
type Pool struct {
	free     chan *Pair
	size     int
	leased   atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
}

// NewPool allocates n pairs whose uncompressed buffers hold size bytes. When
// compressed is false every pair shares a single buffer.
func NewPool(n, size int, compressed bool) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{free: make(chan *Pair, n), size: size}
	for range n {
		pair := &Pair{Uncompressed: New(size)}
		if compressed {
			pair.Compressed = New(CompressedCapacity(size))
		} else {
			pair.Compressed = pair.Uncompressed
		}
		p.free <- pair
	}
	return p
}

// BufferSize reports the capacity of the uncompressed buffers.
func (p *Pool) BufferSize() int { return p.size }

// TryGet returns a free pair or nil without blocking.
func (p *Pool) TryGet() *Pair {
	select {
	case pair := <-p.free:
		return p.lease(pair)
	default:
		return nil
	}
}

// Get waits for a free pair until ctx ends.
func (p *Pool) Get(ctx context.Context) (*Pair, error) {
	select {
	case pair := <-p.free:
		return p.lease(pair), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) lease(pair *Pair) *Pair {
	pair.leased.Store(true)
	p.leased.Add(1)
	p.acquired.Add(1)
	return pair
}

// Put returns a pair to the pool. Returning a pair that is not leased panics.
func (p *Pool) Put(pair *Pair) {
	if !pair.leased.CompareAndSwap(true, false) {
		panic("buffer: pair released twice")
	}
	pair.reset()
	p.leased.Add(-1)
	p.released.Add(1)
	p.free <- pair
}

// Stats reports pool accounting.
type Stats struct {
	Leased   int64
	Acquired int64
	Released int64
}

func (p *Pool) Stats() Stats {
	return Stats{
		Leased:   p.leased.Load(),
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
	}
}
