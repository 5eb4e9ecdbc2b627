package compression

import (
	"fmt"

	"github.com/longkeyy/go-dataflow/core/buffer"
)

// Compressor is the producer-side counterpart of Decompressor.
type Compressor interface {
	SetUncompressedDataBuffer(b *buffer.Buffer)
	SetCompressedDataBuffer(b *buffer.Buffer)
	Compress() error
	SetCurrentInternalCompressionLibraryIndex(index int) error
	CurrentInternalCompressionLibraryIndex() int
	Shutdown(channelID string)
}

// NewCompressor returns the compressor for level, or nil for None.
func NewCompressor(level Level, opts ...Option) (Compressor, error) {
	o := newOptions(opts)
	switch level {
	case None:
		return nil, nil
	case Light, Medium, Heavy, Dynamic:
		lib, err := newLibrarySet(level, o.logger)
		if err != nil {
			return nil, err
		}
		return &compressor{librarySet: lib}, nil
	default:
		return nil, fmt.Errorf("no compressor for compression level %v", level)
	}
}

type compressor struct {
	*librarySet
	compressed   *buffer.Buffer
	uncompressed *buffer.Buffer
}

func (c *compressor) SetCompressedDataBuffer(b *buffer.Buffer)   { c.compressed = b }
func (c *compressor) SetUncompressedDataBuffer(b *buffer.Buffer) { c.uncompressed = b }

// Compress replaces the contents of the compressed buffer with the compressed
// form of the whole uncompressed buffer.
func (c *compressor) Compress() error {
	if c.compressed == nil || c.uncompressed == nil {
		return errNoBuffers
	}
	lib, err := c.active()
	if err != nil {
		return err
	}
	c.compressed.Reset()
	n, err := lib.Compress(c.compressed.Available(), c.uncompressed.Bytes())
	if err != nil {
		return fmt.Errorf("%s compress: %w", lib.Name(), err)
	}
	c.compressed.Commit(n)
	return nil
}

func (c *compressor) SetCurrentInternalCompressionLibraryIndex(index int) error {
	return c.switchTo(index)
}

func (c *compressor) CurrentInternalCompressionLibraryIndex() int {
	return int(c.current.Load())
}

func (c *compressor) Shutdown(channelID string) {
	c.shutdown(channelID)
}
