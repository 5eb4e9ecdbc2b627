package channel

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/compression"
)

func TestDeserializationSpansBuffers(t *testing.T) {
	wire := framed(t, "first record", "", "third")
	for _, size := range []int{1, 2, 3, 5, 7, len(wire)} {
		d := NewDeserializationBuffer[[]byte](serde.Raw{}, 0)

		var got []string
		for off := 0; off < len(wire); off += size {
			end := min(off+size, len(wire))
			src := buffer.Wrap(wire[off:end])
			for src.Remaining() > 0 {
				rec, ok, err := d.ReadData(nil, src)
				if err != nil {
					t.Fatalf("size %d: ReadData: %v", size, err)
				}
				if ok {
					got = append(got, string(rec))
				}
			}
		}
		if diff := cmp.Diff([]string{"first record", "", "third"}, got); diff != "" {
			t.Errorf("size %d (-want +got):\n%s", size, diff)
		}
		if d.Consumed() != int64(len(wire)) {
			t.Errorf("size %d: consumed %d of %d bytes", size, d.Consumed(), len(wire))
		}
	}
}

func TestDeserializationErrors(t *testing.T) {
	d := NewDeserializationBuffer[[]byte](serde.Raw{}, 4)
	_, _, err := d.ReadData(nil, buffer.Wrap(framed(t, "too long")))
	if !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("oversize record: got %v, want %v", err, ErrRecordTooLarge)
	}

	d = NewDeserializationBuffer[[]byte](serde.Raw{}, 0)
	wire := framed(t, "abcdef")
	if _, ok, err := d.ReadData(nil, buffer.Wrap(wire[:6])); ok || err != nil {
		t.Fatalf("partial record: got ok=%v err=%v", ok, err)
	}
	d.Clear()
	rec, ok, err := d.ReadData(nil, buffer.Wrap(framed(t, "xy")))
	if !ok || err != nil || string(rec) != "xy" {
		t.Errorf("after Clear: got (%q, %v, %v)", rec, ok, err)
	}
}

func TestSerializationBufferSpansBuffers(t *testing.T) {
	s := NewSerializationBuffer[[]byte](serde.Raw{}, 0)
	if err := s.SerializeRecord([]byte("0123456789")); err != nil {
		t.Fatalf("SerializeRecord: %v", err)
	}
	if err := s.SerializeRecord([]byte("x")); err == nil {
		t.Error("SerializeRecord with a pending record succeeded")
	}
	var wire []byte
	for {
		b := buffer.New(4)
		done := s.Read(b)
		wire = append(wire, b.Bytes()...)
		if done {
			break
		}
	}
	if diff := cmp.Diff(framed(t, "0123456789"), wire); diff != "" {
		t.Errorf("wire form (-want +got):\n%s", diff)
	}

	small := NewSerializationBuffer[[]byte](serde.Raw{}, 2)
	if err := small.SerializeRecord([]byte("abc")); !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("oversize record: got %v", err)
	}
}

func TestThreeBuffersOneRecordEach(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "r1"), frame(t, "r2"), frame(t, "r3"))
	ch := newRawInput(t, nil, b, WithType(Network))

	for _, want := range []string{"r1", "r2", "r3"} {
		if got := nextRecord(t, ch); got != want {
			t.Errorf("record: got %q, want %q", got, want)
		}
	}
	res, err := ch.ReadRecord(nil)
	if err != nil || res.Status != NoRecordYet {
		t.Fatalf("fourth read: got (%v, %v), want no record yet", res.Status, err)
	}
	if closed, err := ch.IsClosed(); closed || err != nil {
		t.Fatalf("IsClosed before agreement: got (%v, %v)", closed, err)
	}

	ch.ProcessEvent(event.CloseEvent{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed, err := ch.IsClosed(); !closed || err != nil {
		t.Errorf("IsClosed after close: got (%v, %v)", closed, err)
	}
	if diff := cmp.Diff([]event.Event{event.CloseEvent{}}, b.outputEvents()); diff != "" {
		t.Errorf("events sent (-want +got):\n%s", diff)
	}
	c := b.counts()
	if c.Acquired != 3 || c.Released != 3 {
		t.Errorf("pairs: acquired %d released %d, want 3 and 3", c.Acquired, c.Released)
	}
	if got := ch.State(); got != Closed {
		t.Errorf("state: got %v, want %v", got, Closed)
	}
}

func TestTwoRecordsInOneBuffer(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "one", "two"))
	gate := new(fakeGate)
	ch := newRawInput(t, gate, b)

	res, err := ch.ReadRecord(nil)
	if err != nil || res.Status != RecordAvailable || string(res.Record) != "one" {
		t.Fatalf("first read: got (%v, %q, %v)", res.Status, res.Record, err)
	}

	res, err = ch.ReadRecord(nil)
	if err != nil || res.Status != NoRecordYet {
		t.Fatalf("second read: got (%v, %v), want no record yet", res.Status, err)
	}
	st := ch.Stats()
	if st.HoldsBuffer || !st.HasBufferedRecord {
		t.Errorf("after exhausting the buffer: %+v", st)
	}
	if c := b.counts(); c.Released != 1 {
		t.Errorf("released: got %d, want 1", c.Released)
	}
	if gate.notifications() != 1 {
		t.Errorf("gate notifications: got %d, want 1", gate.notifications())
	}

	requests := b.counts().Requests
	res, err = ch.ReadRecord(nil)
	if err != nil || res.Status != RecordAvailable || string(res.Record) != "two" {
		t.Fatalf("third read: got (%v, %q, %v)", res.Status, res.Record, err)
	}
	if got := b.counts().Requests; got != requests {
		t.Errorf("broker requests: got %d, want %d", got, requests)
	}
	if got, want := ch.AmountOfDataTransmitted(), int64(len(framed(t, "one", "two"))); got != want {
		t.Errorf("bytes transmitted: got %d, want %d", got, want)
	}
	if got := ch.Statistics().GetLongCounter(statistics.ChannelRecordsRead); got != 2 {
		t.Errorf("records read counter: got %d", got)
	}
}

func TestIsClosedPrefersPendingData(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "last"))
	ch := newRawInput(t, nil, b)

	if res, _ := ch.ReadRecord(nil); res.Status != NoRecordYet {
		t.Fatalf("first read: got %v", res.Status)
	}
	ch.ProcessEvent(event.CloseEvent{})
	if closed, err := ch.IsClosed(); closed || err != nil {
		t.Fatalf("IsClosed with a buffered record: got (%v, %v)", closed, err)
	}
	if got := nextRecord(t, ch); got != "last" {
		t.Errorf("record: got %q", got)
	}
	if closed, err := ch.IsClosed(); !closed || err != nil {
		t.Errorf("IsClosed after draining: got (%v, %v)", closed, err)
	}
	res, err := ch.ReadRecord(nil)
	if res.Status != EndOfStream || !errors.Is(err, ErrEndOfStream) || !errors.Is(err, io.EOF) {
		t.Errorf("read after end: got (%v, %v)", res.Status, err)
	}
}

func TestStickyFault(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "a", "b"))
	ch := newRawInput(t, nil, b)

	if res, err := ch.ReadRecord(nil); err != nil || res.Status != RecordAvailable {
		t.Fatalf("first read: (%v, %v)", res.Status, err)
	}

	cause := errors.New("connection reset")
	ch.ReportIOException(cause)
	ch.ReportIOException(errors.New("later"))

	for i := range 3 {
		_, err := ch.ReadRecord(nil)
		var fault *FaultError
		if !errors.As(err, &fault) || !errors.Is(err, cause) || fault.ChannelID != ch.ID() {
			t.Errorf("read %d: got %v, want fault wrapping %v", i, err, cause)
		}
	}
	if closed, err := ch.IsClosed(); closed || err != nil {
		t.Errorf("IsClosed with a held buffer: got (%v, %v), want (false, nil)", closed, err)
	}
	if got := ch.State(); got != Faulted {
		t.Errorf("state: got %v", got)
	}
	if got := ch.Statistics().GetLongCounter(statistics.ChannelFaults); got != 1 {
		t.Errorf("fault counter: got %d", got)
	}
	if err := ch.Close(context.Background()); !errors.Is(err, cause) {
		t.Errorf("Close: got %v", err)
	}
	if c := b.counts(); c.Released != 1 {
		t.Errorf("released: got %d, want 1", c.Released)
	}
	if _, err := ch.IsClosed(); !errors.Is(err, cause) {
		t.Errorf("IsClosed after close: got %v, want %v", err, cause)
	}
}

func TestFaultWithoutData(t *testing.T) {
	ch := newRawInput(t, nil, new(loopback))
	cause := errors.New("broken pipe")
	ch.ReportIOException(cause)
	if _, err := ch.ReadRecord(nil); !errors.Is(err, cause) {
		t.Errorf("ReadRecord: got %v", err)
	}
	if _, err := ch.IsClosed(); !errors.Is(err, cause) {
		t.Errorf("IsClosed: got %v", err)
	}
}

func TestDecompressOncePerBuffer(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "a", "b", "c"), frame(t, "d"), frame(t, "e", "f"))
	dec := new(countingDecompressor)
	ch := newRawInput(t, nil, b, WithCompression(compression.Dynamic), WithDecompressor(dec))

	var got []string
	for range 20 {
		res, err := ch.ReadRecord(nil)
		if err != nil {
			t.Fatalf("ReadRecord: %v", err)
		}
		if res.Status == RecordAvailable {
			got = append(got, string(res.Record))
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e", "f"}, got); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if c := b.counts(); dec.calls != c.Acquired || c.Acquired != 3 {
		t.Errorf("decompress calls %d, acquired %d", dec.calls, c.Acquired)
	}
	if got := ch.Statistics().GetLongCounter(statistics.ChannelDecompressions); got != 3 {
		t.Errorf("decompressions counter: got %d", got)
	}

	ch.ReleaseResources()
	ch.ReleaseResources()
	if dec.shutdowns != 1 {
		t.Errorf("shutdowns: got %d, want 1", dec.shutdowns)
	}
}

func TestDecompressErrorFaultsChannel(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "a"), frame(t, "b"))
	cause := errors.New("corrupt block")
	dec := &countingDecompressor{err: cause}
	ch := newRawInput(t, nil, b, WithCompression(compression.Dynamic), WithDecompressor(dec))

	for i := range 3 {
		_, err := ch.ReadRecord(nil)
		var fault *FaultError
		if !errors.As(err, &fault) || !errors.Is(err, cause) {
			t.Errorf("read %d: got %v, want fault wrapping %v", i, err, cause)
		}
	}
	if diff := cmp.Diff(loopbackCounts{Requests: 1, Acquired: 1, Released: 1, Queued: 1}, b.counts()); diff != "" {
		t.Errorf("broker counts (-want +got):\n%s", diff)
	}
	if dec.calls != 1 {
		t.Errorf("decompress calls: got %d, want 1", dec.calls)
	}
	if got := ch.State(); got != Faulted {
		t.Errorf("state: got %v", got)
	}
	if _, err := ch.IsClosed(); !errors.Is(err, cause) {
		t.Errorf("IsClosed: got %v, want %v", err, cause)
	}
}

func TestDecodeErrorKeepsBuffer(t *testing.T) {
	b := new(loopback)
	b.push(frame(t, "0123456789", "x"))
	ch := newRawInput(t, nil, b, WithMaxRecordSize(4))

	if _, err := ch.ReadRecord(nil); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("ReadRecord: got %v", err)
	}
	if st := ch.Stats(); !st.HoldsBuffer {
		t.Error("decode error released the held buffer")
	}
	if c := b.counts(); c.Released != 0 {
		t.Errorf("released: got %d", c.Released)
	}
}

func TestProcessEventRouting(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gate := new(fakeGate)
	dec := new(countingDecompressor)
	ch := newRawInput(t, gate, new(loopback),
		WithDecompressor(dec), WithCompression(compression.Dynamic), WithLogger(zap.New(core)))

	task := event.TaskEvent{Name: "checkpoint", Payload: []byte{1, 2}}
	ch.ProcessEvent(task)
	ch.ProcessEvent(event.CompressionEvent{LibraryIndex: compression.Zstd})
	ch.ProcessEvent(event.ActivateEvent{})
	ch.ProcessEvent(event.UnknownEvent{Tag: 99, Data: []byte("?")})
	ch.ProcessEvent(nil)

	if diff := cmp.Diff([]event.TaskEvent{task}, gate.events); diff != "" {
		t.Errorf("delivered events (-want +got):\n%s", diff)
	}
	if dec.index != compression.Zstd {
		t.Errorf("library index: got %d", dec.index)
	}
	if n := logs.Len(); n != 3 {
		t.Errorf("warnings: got %d, want 3", n)
	}
	if got := ch.Statistics().GetLongCounter(statistics.ChannelUnknownEvents); got != 3 {
		t.Errorf("unknown events counter: got %d", got)
	}
	if ch.Stats().Agreed {
		t.Error("agreement set by a non-close event")
	}

	ch.ProcessEvent(event.CloseEvent{})
	if !ch.Stats().Agreed {
		t.Error("close event did not set agreement")
	}
	if gate.notifications() == 0 {
		t.Error("close event did not notify the gate")
	}
}

func TestCompressionEventWithoutCompression(t *testing.T) {
	ch := newRawInput(t, nil, new(loopback))
	ch.ProcessEvent(event.CompressionEvent{LibraryIndex: compression.LZ4})
	if closed, err := ch.IsClosed(); closed || err != nil {
		t.Errorf("IsClosed: got (%v, %v), want (false, nil)", closed, err)
	}
	if got := ch.Statistics().GetLongCounter(statistics.ChannelUnknownEvents); got != 1 {
		t.Errorf("unknown events counter: got %d, want 1", got)
	}
	if got := ch.State(); got != Open {
		t.Errorf("state: got %v", got)
	}
}

func TestCompressionEventOnFixedLevel(t *testing.T) {
	ch := newRawInput(t, nil, new(loopback), WithCompression(compression.Light))
	ch.ProcessEvent(event.CompressionEvent{LibraryIndex: compression.LZ4})
	if _, err := ch.IsClosed(); !errors.Is(err, compression.ErrSwitchNotAllowed) {
		t.Errorf("IsClosed: got %v, want %v", err, compression.ErrSwitchNotAllowed)
	}
}

func TestCloseDrainEndsOnCloseEvent(t *testing.T) {
	defer leaktest.Check(t)()

	b := new(loopback)
	b.push(frame(t, "unread"), frame(t, "also unread"))
	ch := newRawInput(t, nil, b, WithType(Network), WithPollInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- ch.Close(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for b.counts().Released < 2 {
		select {
		case err := <-done:
			t.Fatalf("Close returned before agreement: %v", err)
		case <-deadline:
			t.Fatal("drain did not release the queued pairs")
		case <-time.After(time.Millisecond):
		}
	}

	ch.ProcessEvent(event.CloseEvent{})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not observe the close event")
	}
	if closed, err := ch.IsClosed(); !closed || err != nil {
		t.Errorf("IsClosed: got (%v, %v)", closed, err)
	}
	if c := b.counts(); c.Acquired != c.Released {
		t.Errorf("acquired %d, released %d", c.Acquired, c.Released)
	}
}

func TestCloseDrainPollsBroker(t *testing.T) {
	defer leaktest.Check(t)()

	b := new(loopback)
	ch := newRawInput(t, nil, b, WithType(Network), WithPollInterval(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- ch.Close(context.Background()) }()

	// A pair queued without a notification is found by the next poll.
	time.Sleep(20 * time.Millisecond)
	b.push(frame(t, "late"))
	deadline := time.After(5 * time.Second)
	for b.counts().Released < 1 {
		select {
		case <-deadline:
			t.Fatal("poll did not drain the late pair")
		case <-time.After(time.Millisecond):
		}
	}
	ch.ReleaseResources()
	if err := <-done; err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCloseContextCancelled(t *testing.T) {
	defer leaktest.Check(t)()

	b := new(loopback)
	ch := newRawInput(t, nil, b, WithType(Network), WithPollInterval(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := ch.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close: got %v, want %v", err, context.DeadlineExceeded)
	}
	if got := ch.State(); got != Open {
		t.Errorf("state after aborted close: got %v", got)
	}
	if len(b.outputEvents()) != 0 {
		t.Error("close event sent without agreement")
	}
}

func TestCloseByChannelType(t *testing.T) {
	tests := []struct {
		typ  Type
		want []event.Event
	}{
		{InMemory, []event.Event{event.CloseEvent{}}},
		{File, nil},
	}
	for _, test := range tests {
		t.Run(test.typ.String(), func(t *testing.T) {
			b := new(loopback)
			b.push(frame(t, "held", "next"))
			ch := newRawInput(t, nil, b, WithType(test.typ))
			if got := nextRecord(t, ch); got != "held" {
				t.Fatalf("record: got %q", got)
			}

			// No agreement: non-network channels do not wait for one.
			for range 2 {
				if err := ch.Close(context.Background()); err != nil {
					t.Fatalf("Close: %v", err)
				}
			}
			if diff := cmp.Diff(test.want, b.outputEvents()); diff != "" {
				t.Errorf("events (-want +got):\n%s", diff)
			}
			if c := b.counts(); c.Released != 1 {
				t.Errorf("released: got %d, want 1", c.Released)
			}
			if _, err := ch.ReadRecord(nil); !errors.Is(err, ErrEndOfStream) {
				t.Errorf("read after close: got %v", err)
			}
		})
	}
}

func TestActivateAndNoBroker(t *testing.T) {
	ch := newRawInput(t, nil, nil)
	if _, err := ch.ReadRecord(nil); !errors.Is(err, ErrNoBroker) {
		t.Errorf("ReadRecord: got %v", err)
	}
	if err := ch.Activate(context.Background()); !errors.Is(err, ErrNoBroker) {
		t.Errorf("Activate: got %v", err)
	}

	b := new(loopback)
	ch.SetBroker(b)
	if err := ch.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if diff := cmp.Diff([]event.Event{event.ActivateEvent{}}, b.outputEvents()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
