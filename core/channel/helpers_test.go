package channel

import (
	"context"
	"sync"
	"testing"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/core/buffer"
)

// loopback is a broker for both ends of a channel within one test. Pairs
// written by an output channel are queued for the input channel; events are
// recorded.
type loopback struct {
	mu       sync.Mutex
	pool     *buffer.Pool
	queue    []*buffer.Pair
	held     *buffer.Pair
	requests int
	acquired int
	released int
	toOutput []event.Event
	toInput  []event.Event
	sendErr  error
}

func (b *loopback) push(pairs ...*buffer.Pair) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, pairs...)
}

func (b *loopback) GetReadBufferToConsume() *buffer.Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	if len(b.queue) == 0 {
		return nil
	}
	if b.held != nil {
		panic("loopback: second pair requested while one is held")
	}
	b.held, b.queue = b.queue[0], b.queue[1:]
	b.acquired++
	return b.held
}

func (b *loopback) ReleaseConsumedReadBuffer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held == nil {
		panic("loopback: release without a held pair")
	}
	if b.pool != nil {
		b.pool.Put(b.held)
	}
	b.held = nil
	b.released++
}

func (b *loopback) TransferEventToOutputChannel(_ context.Context, e event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.toOutput = append(b.toOutput, e)
	return nil
}

func (b *loopback) RequestEmptyWriteBuffers(ctx context.Context) (*buffer.Pair, error) {
	return b.pool.Get(ctx)
}

func (b *loopback) ReleaseWriteBuffers(_ context.Context, pair *buffer.Pair) error {
	b.push(pair)
	return nil
}

func (b *loopback) RecycleWriteBuffers(pair *buffer.Pair) { b.pool.Put(pair) }

func (b *loopback) TransferEventToInputChannel(_ context.Context, e event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toInput = append(b.toInput, e)
	return nil
}

type loopbackCounts struct{ Requests, Acquired, Released, Queued int }

func (b *loopback) counts() loopbackCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return loopbackCounts{b.requests, b.acquired, b.released, len(b.queue)}
}

func (b *loopback) outputEvents() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Event(nil), b.toOutput...)
}

type fakeGate struct {
	mu       sync.Mutex
	notified []int
	events   []event.TaskEvent
}

func (g *fakeGate) NotifyRecordIsAvailable(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notified = append(g.notified, index)
}

func (g *fakeGate) DeliverEvent(e event.TaskEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, e)
}

func (g *fakeGate) notifications() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.notified)
}

// countingDecompressor records how it is driven and leaves buffers alone.
// Decompress returns err when it is set.
type countingDecompressor struct {
	mu        sync.Mutex
	calls     int
	index     int
	shutdowns int
	err       error
}

func (*countingDecompressor) SetCompressedDataBuffer(*buffer.Buffer)   {}
func (*countingDecompressor) SetUncompressedDataBuffer(*buffer.Buffer) {}

func (d *countingDecompressor) Decompress() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.err
}

func (d *countingDecompressor) SetCurrentInternalDecompressionLibraryIndex(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = index
	return nil
}

func (d *countingDecompressor) Shutdown(string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdowns++
}

// frame returns a shared pair holding exactly the framed records.
func frame(t *testing.T, records ...string) *buffer.Pair {
	t.Helper()
	s := NewSerializationBuffer[[]byte](serde.Raw{}, 0)
	b := buffer.New(4096)
	for _, r := range records {
		if err := s.SerializeRecord([]byte(r)); err != nil {
			t.Fatalf("SerializeRecord(%q): %v", r, err)
		}
		if !s.Read(b) {
			t.Fatalf("record %q does not fit", r)
		}
	}
	w := buffer.Wrap(append([]byte(nil), b.Bytes()...))
	return &buffer.Pair{Compressed: w, Uncompressed: w}
}

// framed returns the concatenated wire form of records.
func framed(t *testing.T, records ...string) []byte {
	t.Helper()
	return frame(t, records...).Uncompressed.Bytes()
}

// nextRecord reads until a record is available, allowing for the look-ahead
// that turns the last record of a buffer into a buffered record.
func nextRecord(t *testing.T, ch *InputChannel[[]byte]) string {
	t.Helper()
	for range 3 {
		res, err := ch.ReadRecord(nil)
		if err != nil {
			t.Fatalf("ReadRecord: %v", err)
		}
		if res.Status == RecordAvailable {
			return string(res.Record)
		}
	}
	t.Fatal("no record after three reads")
	return ""
}

func newRawInput(t *testing.T, gate Gate, b Broker, opts ...Option) *InputChannel[[]byte] {
	t.Helper()
	ch, err := NewInputChannel[[]byte](gate, 0, serde.Raw{}, opts...)
	if err != nil {
		t.Fatalf("NewInputChannel: %v", err)
	}
	if b != nil {
		ch.SetBroker(b)
	}
	return ch
}
