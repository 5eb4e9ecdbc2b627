package compression

import (
	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

func init() {
	mustRegister(Zstd, "zstd", func() (Library, error) { return new(zstdLibrary), nil })
}

// zstdLibrary creates its encoder and decoder on first use, so a consumer
// never allocates encoder state.
type zstdLibrary struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (*zstdLibrary) Name() string { return "zstd" }

func (z *zstdLibrary) Compress(dst, src []byte) (int, error) {
	if z.enc == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return 0, err
		}
		z.enc = enc
	}
	out := z.enc.EncodeAll(src, dst[:0])
	if !sameBacking(out, dst) {
		return 0, ErrBufferTooSmall
	}
	return len(out), nil
}

func (z *zstdLibrary) Decompress(dst, src []byte) (int, error) {
	if z.dec == nil {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return 0, err
		}
		z.dec = dec
	}
	out, err := z.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, err
	}
	if !sameBacking(out, dst) {
		return 0, ErrBufferTooSmall
	}
	return len(out), nil
}

func (z *zstdLibrary) Close() error {
	var err error
	if z.enc != nil {
		err = multierr.Append(err, z.enc.Close())
		z.enc = nil
	}
	if z.dec != nil {
		z.dec.Close()
		z.dec = nil
	}
	return err
}

// sameBacking reports whether out was written in place into dst rather than
// into a grown copy.
func sameBacking(out, dst []byte) bool {
	if len(out) == 0 {
		return true
	}
	return len(out) <= len(dst) && cap(dst) > 0 && &out[0] == &dst[:1][0]
}
