package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/transport"
)

// InputBroker is the consumer end of a websocket connection. It implements
// channel.Broker.
type InputBroker struct {
	conn   *conn
	pool   *buffer.Pool
	inbox  *transport.Inbox
	logger *zap.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ channel.Broker = (*InputBroker)(nil)

// Dial connects to the output side of a channel at url, for example
// ws://host/channels/<id>.
func Dial(ctx context.Context, url string, opts ...Option) (*InputBroker, error) {
	o := newOptions(opts)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	pool := buffer.NewPool(o.poolSize, o.bufferSize, o.compressed)
	readCtx, cancel := context.WithCancel(context.Background())
	b := &InputBroker{
		conn:   &conn{ws: ws, writeTimeout: o.writeTimeout, logger: o.logger},
		pool:   pool,
		inbox:  transport.NewInbox(pool, o.logger),
		logger: o.logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.readLoop(readCtx)
	o.logger.Debug("Input broker connected", zap.String("url", url))
	return b, nil
}

// Attach sets the input channel events and read errors are delivered to.
func (b *InputBroker) Attach(h channel.EventHandler) { b.inbox.Attach(h) }

func (b *InputBroker) readLoop(ctx context.Context) {
	defer close(b.done)
	for {
		_, msg, err := b.conn.ws.ReadMessage()
		if err != nil {
			if !b.conn.isClosing() && !isNormalClose(err) {
				b.inbox.Fail(fmt.Errorf("read: %w", err))
			}
			return
		}
		kind, body, err := parseFrame(msg)
		if err != nil {
			b.inbox.Fail(err)
			return
		}
		switch kind {
		case frameData:
			pair, err := b.pool.Get(ctx)
			if err != nil {
				return
			}
			if _, err := pair.Compressed.Write(body); err != nil {
				b.pool.Put(pair)
				b.inbox.Fail(fmt.Errorf("data frame of %d bytes: %w", len(body), err))
				return
			}
			if err := b.inbox.PushPair(pair); err != nil {
				b.pool.Put(pair)
				return
			}
		case frameEvent:
			e, err := event.Unmarshal(body)
			if err != nil {
				b.inbox.Fail(err)
				return
			}
			if err := b.inbox.PushEvent(e); err != nil {
				return
			}
		}
	}
}

func (b *InputBroker) GetReadBufferToConsume() *buffer.Pair {
	return b.inbox.GetReadBufferToConsume()
}

func (b *InputBroker) ReleaseConsumedReadBuffer() {
	b.inbox.ReleaseConsumedReadBuffer()
}

func (b *InputBroker) TransferEventToOutputChannel(ctx context.Context, e event.Event) error {
	msg, err := eventFrame(e)
	if err != nil {
		return err
	}
	return b.conn.write(ctx, msg)
}

// Stats reports the buffer accounting of the broker.
func (b *InputBroker) Stats() (buffer.Stats, transport.InboxStats) {
	return b.pool.Stats(), b.inbox.Stats()
}

// Close closes the connection and waits for the reader to stop.
func (b *InputBroker) Close() error {
	b.closeOnce.Do(func() {
		err := b.conn.close()
		b.cancel()
		<-b.done
		b.inbox.Close()
		b.closeErr = multierr.Append(b.closeErr, err)
	})
	return b.closeErr
}
