package compression

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/core/buffer"
)

// Decompressor turns the compressed half of a buffer pair into its
// uncompressed half. Decompress runs on the consumer goroutine, while
// SetCurrentInternalDecompressionLibraryIndex may be called concurrently by
// the event path.
type Decompressor interface {
	SetCompressedDataBuffer(b *buffer.Buffer)
	SetUncompressedDataBuffer(b *buffer.Buffer)
	Decompress() error
	SetCurrentInternalDecompressionLibraryIndex(index int) error
	Shutdown(channelID string)
}

var errNoBuffers = errors.New("compression: buffers not set")

// Option configures a Decompressor or Compressor.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for library switches and shutdown.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewDecompressor returns the decompressor for level. None yields a
// pass-through implementation.
func NewDecompressor(level Level, opts ...Option) (Decompressor, error) {
	o := newOptions(opts)
	switch level {
	case None:
		return new(passthrough), nil
	case Light, Medium, Heavy, Dynamic:
		lib, err := newLibrarySet(level, o.logger)
		if err != nil {
			return nil, err
		}
		return &decompressor{librarySet: lib}, nil
	default:
		return nil, fmt.Errorf("no decompressor for compression level %v", level)
	}
}

// passthrough is used when the channel does not compress. When the broker
// hands out distinct buffers it copies the bytes across.
type passthrough struct {
	compressed   *buffer.Buffer
	uncompressed *buffer.Buffer
}

func (p *passthrough) SetCompressedDataBuffer(b *buffer.Buffer)   { p.compressed = b }
func (p *passthrough) SetUncompressedDataBuffer(b *buffer.Buffer) { p.uncompressed = b }

func (p *passthrough) Decompress() error {
	if p.compressed == nil || p.uncompressed == nil || p.compressed == p.uncompressed {
		return nil
	}
	p.uncompressed.Reset()
	if _, err := p.uncompressed.Write(p.compressed.Next(p.compressed.Remaining())); err != nil {
		return ErrBufferTooSmall
	}
	return nil
}

func (*passthrough) SetCurrentInternalDecompressionLibraryIndex(int) error {
	return ErrSwitchNotAllowed
}

func (*passthrough) Shutdown(string) {}

// librarySet holds the library instances of one channel, created on demand,
// and the index of the one in effect.
type librarySet struct {
	level   Level
	logger  *zap.Logger
	current atomic.Int64

	mu   sync.Mutex
	libs map[int]Library
}

func newLibrarySet(level Level, logger *zap.Logger) (*librarySet, error) {
	s := &librarySet{level: level, logger: logger, libs: make(map[int]Library)}
	initial := level.initialLibrary()
	if _, err := s.library(initial); err != nil {
		return nil, err
	}
	s.current.Store(int64(initial))
	return s, nil
}

func (s *librarySet) library(index int) (Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lib, ok := s.libs[index]; ok {
		return lib, nil
	}
	lib, err := NewLibrary(index)
	if err != nil {
		return nil, err
	}
	s.libs[index] = lib
	return lib, nil
}

func (s *librarySet) active() (Library, error) {
	return s.library(int(s.current.Load()))
}

func (s *librarySet) switchTo(index int) error {
	if s.level != Dynamic && index != s.level.initialLibrary() {
		return fmt.Errorf("%w: %v cannot use %s", ErrSwitchNotAllowed, s.level, LibraryName(index))
	}
	if _, err := s.library(index); err != nil {
		return err
	}
	if old := s.current.Swap(int64(index)); old != int64(index) {
		s.logger.Debug("Compression library switched",
			zap.String("from", LibraryName(int(old))),
			zap.String("to", LibraryName(index)))
	}
	return nil
}

func (s *librarySet) shutdown(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for index, lib := range s.libs {
		err = multierr.Append(err, lib.Close())
		delete(s.libs, index)
	}
	if err != nil {
		s.logger.Warn("Compression library shutdown failed",
			zap.String("channelId", channelID), zap.Error(err))
		return
	}
	s.logger.Debug("Compression libraries released", zap.String("channelId", channelID))
}

type decompressor struct {
	*librarySet
	compressed   *buffer.Buffer
	uncompressed *buffer.Buffer
}

func (d *decompressor) SetCompressedDataBuffer(b *buffer.Buffer)   { d.compressed = b }
func (d *decompressor) SetUncompressedDataBuffer(b *buffer.Buffer) { d.uncompressed = b }

// Decompress replaces the contents of the uncompressed buffer with the
// decompressed unread bytes of the compressed buffer.
func (d *decompressor) Decompress() error {
	if d.compressed == nil || d.uncompressed == nil {
		return errNoBuffers
	}
	lib, err := d.active()
	if err != nil {
		return err
	}
	d.uncompressed.Reset()
	n, err := lib.Decompress(d.uncompressed.Available(), d.compressed.Bytes())
	if err != nil {
		return fmt.Errorf("%s decompress: %w", lib.Name(), err)
	}
	d.compressed.Next(d.compressed.Remaining())
	d.uncompressed.Commit(n)
	return nil
}

func (d *decompressor) SetCurrentInternalDecompressionLibraryIndex(index int) error {
	return d.switchTo(index)
}

func (d *decompressor) Shutdown(channelID string) {
	d.shutdown(channelID)
}
