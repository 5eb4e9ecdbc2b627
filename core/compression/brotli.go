package compression

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

func init() {
	mustRegister(Brotli, "brotli", func() (Library, error) { return new(brotliLibrary), nil })
}

type brotliLibrary struct {
	w   *brotli.Writer
	r   *brotli.Reader
	src bytes.Reader
	out fixedWriter
}

func (*brotliLibrary) Name() string { return "brotli" }

func (b *brotliLibrary) Compress(dst, src []byte) (int, error) {
	b.out = fixedWriter{buf: dst}
	if b.w == nil {
		b.w = brotli.NewWriterLevel(&b.out, brotli.DefaultCompression)
	} else {
		b.w.Reset(&b.out)
	}
	if _, err := b.w.Write(src); err != nil {
		return 0, err
	}
	if err := b.w.Close(); err != nil {
		return 0, err
	}
	return b.out.n, nil
}

func (b *brotliLibrary) Decompress(dst, src []byte) (int, error) {
	b.src.Reset(src)
	if b.r == nil {
		b.r = brotli.NewReader(&b.src)
	} else if err := b.r.Reset(&b.src); err != nil {
		return 0, err
	}

	n := 0
	for {
		if n == len(dst) {
			var probe [1]byte
			m, err := b.r.Read(probe[:])
			if m > 0 {
				return 0, ErrBufferTooSmall
			}
			if err == io.EOF {
				return n, nil
			}
			if err != nil {
				return 0, err
			}
			continue
		}
		m, err := b.r.Read(dst[n:])
		n += m
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (b *brotliLibrary) Close() error {
	b.w = nil
	b.r = nil
	return nil
}

// fixedWriter writes into a preallocated slice and fails instead of growing.
type fixedWriter struct {
	buf []byte
	n   int
}

func (w *fixedWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, ErrBufferTooSmall
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}
