package compression

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

func init() {
	mustRegister(LZ4, "lz4", func() (Library, error) { return new(lz4Library), nil })
}

// Blocks start with a marker byte: incompressible input is stored verbatim.
const (
	lz4Raw   byte = 0
	lz4Block byte = 1
)

type lz4Library struct {
	c lz4.Compressor
}

func (*lz4Library) Name() string { return "lz4" }

func (l *lz4Library) Compress(dst, src []byte) (int, error) {
	if len(dst) < 1+lz4.CompressBlockBound(len(src)) {
		return 0, ErrBufferTooSmall
	}
	n, err := l.c.CompressBlock(src, dst[1:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		dst[0] = lz4Raw
		return 1 + copy(dst[1:], src), nil
	}
	dst[0] = lz4Block
	return 1 + n, nil
}

func (*lz4Library) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	switch src[0] {
	case lz4Raw:
		if len(src)-1 > len(dst) {
			return 0, ErrBufferTooSmall
		}
		return copy(dst, src[1:]), nil
	case lz4Block:
		n, err := lz4.UncompressBlock(src[1:], dst)
		if err != nil {
			return 0, fmt.Errorf("lz4: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("lz4: invalid block marker %#x", src[0])
	}
}

func (*lz4Library) Close() error { return nil }
