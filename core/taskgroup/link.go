package taskgroup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/transport/memory"
	"github.com/longkeyy/go-dataflow/core/transport/websocket"
)

// producerEnd and consumerEnd are the broker sides a channel attaches to.
type producerEnd interface {
	channel.OutputBroker
	Attach(h channel.EventHandler)
}

type consumerEnd interface {
	channel.Broker
	Attach(h channel.EventHandler)
}

// link connects the output channel of a task group to its input channel.
type link struct {
	producer producerEnd
	consumer consumerEnd
	// done tells the transport the producer has finished.
	done  func()
	close func() error
}

func openLink(ctx context.Context, id channel.ID, s channel.Settings, listen string, logger *zap.Logger) (*link, error) {
	switch s.Type {
	case channel.InMemory:
		l := memory.NewLink(memory.WithSettings(s), memory.WithLogger(logger))
		return &link{
			producer: l.Output(),
			consumer: l.Input(),
			done:     func() {},
			close:    func() error { l.Close(); return nil },
		}, nil
	case channel.Network:
		return openNetworkLink(ctx, id, s, listen, logger)
	default:
		return nil, fmt.Errorf("channel type %s has no transport", s.Type)
	}
}

// openNetworkLink serves the producer side on listen and dials it from the
// consumer side, so records cross a real websocket connection.
func openNetworkLink(ctx context.Context, id channel.ID, s channel.Settings, listen string, logger *zap.Logger) (*link, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", listen, err)
	}

	brokers := make(chan *websocket.OutputBroker, 1)
	finished := make(chan struct{})
	var finishOnce sync.Once
	finish := func() { finishOnce.Do(func() { close(finished) }) }

	handler := websocket.NewHandler(func(ctx context.Context, b *websocket.OutputBroker) error {
		if b.ID() != id {
			return fmt.Errorf("unknown channel %s", b.ID())
		}
		select {
		case brokers <- b:
		default:
			return fmt.Errorf("channel %s already connected", b.ID())
		}
		select {
		case <-finished:
		case <-ctx.Done():
		}
		return nil
	}, websocket.WithSettings(s), websocket.WithLogger(logger))

	srv := &http.Server{Handler: websocket.NewRouter(handler, nil), ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	shutdown := func() error {
		finish()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		handler.Wait()
		if serr := <-served; !errors.Is(serr, http.ErrServerClosed) {
			err = multierr.Append(err, serr)
		}
		return err
	}

	url := fmt.Sprintf("ws://%s/channels/%s", ln.Addr(), id)
	consumer, err := websocket.Dial(ctx, url, websocket.WithSettings(s), websocket.WithLogger(logger))
	if err != nil {
		return nil, multierr.Append(err, shutdown())
	}

	var producer *websocket.OutputBroker
	select {
	case producer = <-brokers:
	case <-ctx.Done():
		return nil, multierr.Combine(ctx.Err(), consumer.Close(), shutdown())
	}

	return &link{
		producer: producer,
		consumer: consumer,
		done:     finish,
		close: func() error {
			return multierr.Append(consumer.Close(), shutdown())
		},
	}, nil
}
