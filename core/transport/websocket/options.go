package websocket

import (
	"time"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/compression"
)

// Option configures a broker.
type Option func(*options)

type options struct {
	poolSize     int
	bufferSize   int
	compressed   bool
	writeTimeout time.Duration
	logger       *zap.Logger
}

func newOptions(opts []Option) options {
	o := options{
		poolSize:     channel.DefaultPoolSize,
		bufferSize:   channel.DefaultBufferSize,
		writeTimeout: 10 * time.Second,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSettings sizes the buffer pool from channel settings. Both ends of a
// connection must use the same buffer size and compression level.
func WithSettings(s channel.Settings) Option {
	return func(o *options) {
		o.poolSize = s.PoolSize
		o.bufferSize = s.BufferSize
		o.compressed = s.Compression != compression.None
	}
}

// WithWriteTimeout bounds writes whose context has no deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
