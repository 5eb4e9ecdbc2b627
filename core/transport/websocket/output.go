package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/core/buffer"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/transport"
)

// OutputBroker is the producer end of a websocket connection. It implements
// channel.OutputBroker.
type OutputBroker struct {
	id     channel.ID
	conn   *conn
	pool   *buffer.Pool
	events *transport.Inbox
	done   chan struct{}
}

var _ channel.OutputBroker = (*OutputBroker)(nil)

// ID is the channel id taken from the request path.
func (b *OutputBroker) ID() channel.ID { return b.id }

// Attach sets the output channel events from the consumer are delivered to.
func (b *OutputBroker) Attach(h channel.EventHandler) { b.events.Attach(h) }

func (b *OutputBroker) RequestEmptyWriteBuffers(ctx context.Context) (*buffer.Pair, error) {
	return b.pool.Get(ctx)
}

// ReleaseWriteBuffers sends the compressed half of pair and recycles it.
func (b *OutputBroker) ReleaseWriteBuffers(ctx context.Context, pair *buffer.Pair) error {
	defer b.pool.Put(pair)
	return b.conn.write(ctx, dataFrame(pair.Compressed.Bytes()))
}

func (b *OutputBroker) RecycleWriteBuffers(pair *buffer.Pair) { b.pool.Put(pair) }

func (b *OutputBroker) TransferEventToInputChannel(ctx context.Context, e event.Event) error {
	msg, err := eventFrame(e)
	if err != nil {
		return err
	}
	return b.conn.write(ctx, msg)
}

func (b *OutputBroker) readLoop() {
	defer close(b.done)
	for {
		_, msg, err := b.conn.ws.ReadMessage()
		if err != nil {
			if !b.conn.isClosing() && !isNormalClose(err) {
				b.events.Fail(fmt.Errorf("read: %w", err))
			}
			return
		}
		kind, body, err := parseFrame(msg)
		if err == nil && kind != frameEvent {
			err = fmt.Errorf("websocket: unexpected data frame from consumer")
		}
		if err != nil {
			b.events.Fail(err)
			return
		}
		e, err := event.Unmarshal(body)
		if err != nil {
			b.events.Fail(err)
			return
		}
		if err := b.events.PushEvent(e); err != nil {
			return
		}
	}
}

// ServeFunc produces the data of one channel. The connection is closed when it
// returns.
type ServeFunc func(ctx context.Context, out *OutputBroker) error

// Handler upgrades consumer connections and runs a ServeFunc for each.
type Handler struct {
	serve    ServeFunc
	opts     options
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

// NewHandler returns a handler for routes with an {id} variable.
func NewHandler(serve ServeFunc, opts ...Option) *Handler {
	o := newOptions(opts)
	return &Handler{
		serve: serve,
		opts:  o,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "missing channel id", http.StatusBadRequest)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.logger.Warn("Websocket upgrade failed", zap.String("channelId", id), zap.Error(err))
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	logger := h.opts.logger.With(zap.String("channelId", id))
	b := &OutputBroker{
		id:     channel.ID(id),
		conn:   &conn{ws: ws, writeTimeout: h.opts.writeTimeout, logger: logger},
		pool:   buffer.NewPool(h.opts.poolSize, h.opts.bufferSize, h.opts.compressed),
		events: transport.NewInbox(nil, logger),
		done:   make(chan struct{}),
	}
	go b.readLoop()

	logger.Debug("Output broker connected", zap.String("remote", r.RemoteAddr))
	if err := h.serve(r.Context(), b); err != nil {
		logger.Error("Channel producer failed", zap.Error(err))
	}
	if err := b.conn.close(); err != nil {
		logger.Debug("Close connection", zap.Error(err))
	}
	<-b.done
	b.events.Close()
}

// Wait blocks until every connection served so far has finished.
func (h *Handler) Wait() { h.wg.Wait() }
