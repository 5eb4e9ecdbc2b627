package compression

import "github.com/golang/snappy"

func init() {
	mustRegister(Snappy, "snappy", func() (Library, error) { return snappyLibrary{}, nil })
}

type snappyLibrary struct{}

func (snappyLibrary) Name() string { return "snappy" }

func (snappyLibrary) Compress(dst, src []byte) (int, error) {
	if max := snappy.MaxEncodedLen(len(src)); max < 0 || len(dst) < max {
		return 0, ErrBufferTooSmall
	}
	return len(snappy.Encode(dst, src)), nil
}

func (snappyLibrary) Decompress(dst, src []byte) (int, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return 0, err
	}
	if n > len(dst) {
		return 0, ErrBufferTooSmall
	}
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func (snappyLibrary) Close() error { return nil }
