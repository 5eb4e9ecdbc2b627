package channel

import (
	"encoding/binary"
	"fmt"

	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/core/buffer"
)

// lengthSize is the size of the big-endian record length prefix.
const lengthSize = 4

// DeserializationBuffer decodes length-prefixed records from a sequence of
// buffers. A record may span any number of buffers; the partial header and
// payload are kept until the rest arrives.
type DeserializationBuffer[T any] struct {
	deserializer  serde.Deserializer[T]
	maxRecordSize int

	header    [lengthSize]byte
	headerLen int
	length    int
	payload   []byte

	consumed int64
}

func NewDeserializationBuffer[T any](deserializer serde.Deserializer[T], maxRecordSize int) *DeserializationBuffer[T] {
	if maxRecordSize <= 0 {
		maxRecordSize = DefaultMaxRecordSize
	}
	return &DeserializationBuffer[T]{deserializer: deserializer, maxRecordSize: maxRecordSize}
}

// ReadData consumes bytes from src until one record is complete. It reports
// ok=false when src ran dry first.
func (d *DeserializationBuffer[T]) ReadData(target T, src *buffer.Buffer) (record T, ok bool, err error) {
	if d.headerLen < lengthSize {
		n := copy(d.header[d.headerLen:], src.Next(lengthSize-d.headerLen))
		d.headerLen += n
		d.consumed += int64(n)
		if d.headerLen < lengthSize {
			return record, false, nil
		}
		length := binary.BigEndian.Uint32(d.header[:])
		if int64(length) > int64(d.maxRecordSize) {
			d.Clear()
			return record, false, fmt.Errorf("deserialize record: %w: %d bytes", ErrRecordTooLarge, length)
		}
		d.length = int(length)
		d.payload = d.payload[:0]
	}

	chunk := src.Next(d.length - len(d.payload))
	d.consumed += int64(len(chunk))

	data := chunk
	if len(d.payload) > 0 || len(chunk) < d.length {
		d.payload = append(d.payload, chunk...)
		if len(d.payload) < d.length {
			return record, false, nil
		}
		data = d.payload
	}

	d.headerLen = 0
	record, err = d.deserializer.Deserialize(data, target)
	d.payload = d.payload[:0]
	if err != nil {
		return record, false, fmt.Errorf("deserialize record: %w", err)
	}
	return record, true, nil
}

// Clear drops a partially read record.
func (d *DeserializationBuffer[T]) Clear() {
	d.headerLen = 0
	d.length = 0
	d.payload = d.payload[:0]
}

// Consumed reports the number of bytes read from buffers so far.
func (d *DeserializationBuffer[T]) Consumed() int64 { return d.consumed }

// SerializationBuffer frames records for an output channel. The framed record
// is copied into as many buffers as it needs.
type SerializationBuffer[T any] struct {
	serializer    serde.Serializer[T]
	maxRecordSize int

	data []byte
	pos  int
}

func NewSerializationBuffer[T any](serializer serde.Serializer[T], maxRecordSize int) *SerializationBuffer[T] {
	if maxRecordSize <= 0 {
		maxRecordSize = DefaultMaxRecordSize
	}
	return &SerializationBuffer[T]{serializer: serializer, maxRecordSize: maxRecordSize}
}

// HasData reports whether part of the last record has not been copied out.
func (s *SerializationBuffer[T]) HasData() bool { return s.pos < len(s.data) }

// SerializeRecord frames record. The previous record must have been copied
// out completely.
func (s *SerializationBuffer[T]) SerializeRecord(record T) error {
	if s.HasData() {
		return fmt.Errorf("serialize record: %d bytes of the previous record pending", len(s.data)-s.pos)
	}
	data := append(s.data[:0], 0, 0, 0, 0)
	data, err := s.serializer.Serialize(data, record)
	if err != nil {
		s.Clear()
		return fmt.Errorf("serialize record: %w", err)
	}
	if n := len(data) - lengthSize; n > s.maxRecordSize {
		s.Clear()
		return fmt.Errorf("serialize record: %w: %d bytes", ErrRecordTooLarge, n)
	}
	binary.BigEndian.PutUint32(data, uint32(len(data)-lengthSize))
	s.data, s.pos = data, 0
	return nil
}

// Read copies as much of the pending record as fits into dst and reports
// whether the record is complete.
func (s *SerializationBuffer[T]) Read(dst *buffer.Buffer) bool {
	n := copy(dst.Available(), s.data[s.pos:])
	dst.Commit(n)
	s.pos += n
	return !s.HasData()
}

func (s *SerializationBuffer[T]) Clear() {
	s.data = s.data[:0]
	s.pos = 0
}
