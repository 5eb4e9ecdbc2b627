package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// conn serializes writes to a websocket connection.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	closing bool
}

func (c *conn) write(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Unblock a write stuck on a peer that stopped reading.
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.UnderlyingConn().SetWriteDeadline(time.Now())
	})
	defer stop()
	if err := c.ws.SetWriteDeadline(writeDeadline(ctx, c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, msg)
}

// isClosing reports whether close has been called.
func (c *conn) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// close sends a close message and closes the connection.
func (c *conn) close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		c.logger.Debug("Close message not sent", zap.Error(err))
	}
	c.mu.Unlock()
	return c.ws.Close()
}
