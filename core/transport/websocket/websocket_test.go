package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/compression"
)

type wakeGate chan struct{}

func (g wakeGate) NotifyRecordIsAvailable(int) {
	select {
	case g <- struct{}{}:
	default:
	}
}

func (wakeGate) DeliverEvent(event.TaskEvent) {}

func records(n int) []string {
	var out []string
	for i := range n {
		out = append(out, fmt.Sprintf("record-%03d", i))
	}
	return out
}

// produce returns a ServeFunc writing want through a network output channel.
func produce(s channel.Settings, want []string) ServeFunc {
	return func(ctx context.Context, b *OutputBroker) error {
		out, err := channel.NewOutputChannel[[]byte](serde.Raw{},
			channel.WithID(b.ID()), channel.WithType(channel.Network), channel.WithCompression(s.Compression))
		if err != nil {
			return err
		}
		defer out.ReleaseResources()
		out.SetBroker(b)
		b.Attach(out)
		for _, r := range want {
			if err := out.WriteRecord(ctx, []byte(r)); err != nil {
				return err
			}
		}
		if err := out.Close(ctx); err != nil {
			return err
		}
		select {
		case <-out.ConsumerClosed():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("consumer did not close")
		}
	}
}

func wsURL(srv *httptest.Server, id channel.ID) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/channels/" + string(id)
}

func TestEndToEnd(t *testing.T) {
	for _, level := range []compression.Level{compression.None, compression.Light, compression.Heavy} {
		t.Run(level.String(), func(t *testing.T) {
			defer leaktest.Check(t)()

			s := channel.DefaultSettings()
			s.BufferSize, s.PoolSize, s.Compression = 128, 2, level
			want := records(300)

			h := NewHandler(produce(s, want), WithSettings(s))
			srv := httptest.NewServer(NewRouter(h, nil))
			defer srv.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			id := channel.NewID()
			broker, err := Dial(ctx, wsURL(srv, id), WithSettings(s))
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			wake := make(wakeGate, 1)
			in, err := channel.NewInputChannel[[]byte](wake, 0, serde.Raw{},
				channel.WithID(id), channel.WithType(channel.Network), channel.WithCompression(level),
				channel.WithPollInterval(10*time.Millisecond))
			if err != nil {
				t.Fatalf("NewInputChannel: %v", err)
			}
			in.SetBroker(broker)
			broker.Attach(in)

			var got []string
			for {
				res, err := in.ReadRecord(nil)
				if errors.Is(err, channel.ErrEndOfStream) {
					break
				}
				if err != nil {
					t.Fatalf("ReadRecord after %d records: %v", len(got), err)
				}
				if res.Status == channel.RecordAvailable {
					got = append(got, string(res.Record))
					continue
				}
				select {
				case <-wake:
				case <-time.After(10 * time.Millisecond):
				case <-ctx.Done():
					t.Fatalf("timed out after %d records", len(got))
				}
			}
			if err := in.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}
			in.ReleaseResources()
			h.Wait()
			broker.Close()

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("records (-want +got):\n%s", diff)
			}
			pool, inbox := broker.Stats()
			if pool.Leased != 0 {
				t.Errorf("pool accounting: %+v", pool)
			}
			if inbox.Acquired != inbox.Released {
				t.Errorf("inbox accounting: %+v", inbox)
			}
		})
	}
}

func TestDialRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := Dial(context.Background(), wsURL(srv, "x")); err == nil {
		t.Error("Dial to a plain HTTP handler succeeded")
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		msg     []byte
		kind    byte
		body    []byte
		wantErr bool
	}{
		{msg: nil, wantErr: true},
		{msg: []byte{0x09, 1}, wantErr: true},
		{msg: dataFrame([]byte("abc")), kind: frameData, body: []byte("abc")},
		{msg: []byte{frameEvent}, kind: frameEvent, body: []byte{}},
	}
	for _, test := range tests {
		kind, body, err := parseFrame(test.msg)
		if test.wantErr {
			if err == nil {
				t.Errorf("parseFrame(%v): no error", test.msg)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFrame(%v): %v", test.msg, err)
			continue
		}
		if kind != test.kind || string(body) != string(test.body) {
			t.Errorf("parseFrame(%v) = %#x %q, want %#x %q", test.msg, kind, body, test.kind, test.body)
		}
	}

	msg, err := eventFrame(event.CompressionEvent{LibraryIndex: 2})
	if err != nil {
		t.Fatalf("eventFrame: %v", err)
	}
	kind, body, err := parseFrame(msg)
	if err != nil || kind != frameEvent {
		t.Fatalf("parseFrame(event) = %#x, %v", kind, err)
	}
	e, err := event.Unmarshal(body)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(event.Event(event.CompressionEvent{LibraryIndex: 2}), e); diff != "" {
		t.Errorf("event (-want +got):\n%s", diff)
	}
}

func TestRouterMetrics(t *testing.T) {
	comm := statistics.NewCommunicator()
	comm.Register("c1").IncreaseCounter(statistics.ChannelRecordsRead, 7)
	reg := prometheus.NewRegistry()
	reg.MustRegister(statistics.NewPrometheusCollector("", comm))

	srv := httptest.NewServer(NewRouter(http.NotFoundHandler(), reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	want := `dataflow_channel_records_read_total{channel_id="c1",component="dataflow"} 7`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics missing %q:\n%s", want, body)
	}
}
