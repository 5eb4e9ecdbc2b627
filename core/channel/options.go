package channel

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/compression"
)

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultMaxRecordSize = 64 << 20
	DefaultBufferSize    = 32 << 10
	DefaultPoolSize      = 4
)

// Configuration keys read by SettingsFromConfig.
const (
	KeyType              = "channel.type"
	KeyCompression       = "channel.compression"
	KeyBufferSize        = "channel.bufferSize"
	KeyPoolSize          = "channel.poolSize"
	KeyClosePollInterval = "channel.closePollInterval"
	KeyMaxRecordSize     = "channel.maxRecordSize"
	KeyRotateRecords     = "channel.rotateRecords"
)

// Settings are the configurable properties of a channel and its broker.
type Settings struct {
	Type          Type
	Compression   compression.Level
	BufferSize    int
	PoolSize      int
	PollInterval  time.Duration
	MaxRecordSize int
	// RotateRecords is the number of records a dynamic channel writes before
	// it moves to the next compression library. Zero disables rotation.
	RotateRecords int
}

func DefaultSettings() Settings {
	return Settings{
		Type:          InMemory,
		Compression:   compression.None,
		BufferSize:    DefaultBufferSize,
		PoolSize:      DefaultPoolSize,
		PollInterval:  DefaultPollInterval,
		MaxRecordSize: DefaultMaxRecordSize,
	}
}

// SettingsFromConfig reads the channel.* keys of cfg, using defaults for
// missing ones.
func SettingsFromConfig(cfg config.Configuration) (Settings, error) {
	s := DefaultSettings()
	typ, err := ParseType(cfg.GetStringWithDefault(KeyType, s.Type.String()))
	if err != nil {
		return s, err
	}
	level, err := compression.ParseLevel(cfg.GetStringWithDefault(KeyCompression, s.Compression.String()))
	if err != nil {
		return s, err
	}
	s.Type = typ
	s.Compression = level
	s.BufferSize = cfg.GetIntWithDefault(KeyBufferSize, s.BufferSize)
	s.PoolSize = cfg.GetIntWithDefault(KeyPoolSize, s.PoolSize)
	s.PollInterval = cfg.GetDurationWithDefault(KeyClosePollInterval, s.PollInterval)
	s.MaxRecordSize = cfg.GetIntWithDefault(KeyMaxRecordSize, s.MaxRecordSize)
	s.RotateRecords = cfg.GetIntWithDefault(KeyRotateRecords, s.RotateRecords)
	if s.RotateRecords < 0 {
		return s, fmt.Errorf("%s must not be negative, got %d", KeyRotateRecords, s.RotateRecords)
	}
	return s, nil
}

// Options returns the channel options equivalent to s.
func (s Settings) Options() []Option {
	return []Option{
		WithType(s.Type),
		WithCompression(s.Compression),
		WithPollInterval(s.PollInterval),
		WithMaxRecordSize(s.MaxRecordSize),
	}
}

// Option configures an input or output channel.
type Option func(*options)

type options struct {
	id            ID
	typ           Type
	level         compression.Level
	pollInterval  time.Duration
	maxRecordSize int
	logger        *zap.Logger
	stats         *statistics.Communication
	decompressor  compression.Decompressor
	compressor    compression.Compressor
}

func newOptions(opts []Option) options {
	o := options{
		typ:           InMemory,
		level:         compression.None,
		pollInterval:  DefaultPollInterval,
		maxRecordSize: DefaultMaxRecordSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.id == "" {
		o.id = NewID()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.stats == nil {
		o.stats = statistics.NewCommunication()
	}
	return o
}

// WithID sets the channel ID. By default a random one is generated.
func WithID(id ID) Option {
	return func(o *options) { o.id = id }
}

func WithType(t Type) Option {
	return func(o *options) { o.typ = t }
}

func WithCompression(level compression.Level) Option {
	return func(o *options) { o.level = level }
}

// WithPollInterval sets how long a closing network channel waits between
// polls of its broker.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithMaxRecordSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecordSize = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStatistics sets the communication the channel updates its counters in.
func WithStatistics(c *statistics.Communication) Option {
	return func(o *options) { o.stats = c }
}

// WithDecompressor replaces the decompressor selected by the compression
// level of an input channel.
func WithDecompressor(d compression.Decompressor) Option {
	return func(o *options) { o.decompressor = d }
}

// WithCompressor replaces the compressor selected by the compression level of
// an output channel.
func WithCompressor(c compression.Compressor) Option {
	return func(o *options) { o.compressor = c }
}
