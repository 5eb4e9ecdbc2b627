// Package websocket carries channel buffers and events over websocket
// connections. Every buffer and every event is one binary message whose first
// byte tells them apart.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/longkeyy/go-dataflow/common/event"
)

const (
	frameData  byte = 0x01
	frameEvent byte = 0x02
)

var errEmptyFrame = errors.New("websocket: empty frame")

func eventFrame(e event.Event) ([]byte, error) {
	return event.Marshal([]byte{frameEvent}, e)
}

func dataFrame(p []byte) []byte {
	frame := make([]byte, 1+len(p))
	frame[0] = frameData
	copy(frame[1:], p)
	return frame
}

// parseFrame splits a message into its kind and body.
func parseFrame(msg []byte) (byte, []byte, error) {
	if len(msg) == 0 {
		return 0, nil, errEmptyFrame
	}
	switch msg[0] {
	case frameData, frameEvent:
		return msg[0], msg[1:], nil
	default:
		return 0, nil, fmt.Errorf("websocket: unknown frame kind %#x", msg[0])
	}
}

// writeDeadline derives the write deadline for a message from ctx.
func writeDeadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

// isNormalClose reports whether err ends a connection the peer closed on
// purpose.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
