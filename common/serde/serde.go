// Package serde contains the record codecs used by byte-buffered channels.
//
// A channel never interprets record payloads itself: the serialization buffer
// frames whatever a Serializer appends, and the deserialization buffer hands the
// framed bytes back to the matching Deserializer.
package serde

// Serializer appends the encoded form of record to dst.
type Serializer[T any] interface {
	Serialize(dst []byte, record T) ([]byte, error)
}

// Deserializer decodes one record from data. Implementations may reuse target
// and must not retain data after returning.
type Deserializer[T any] interface {
	Deserialize(data []byte, target T) (T, error)
}

// Codec is a Serializer and Deserializer for the same record type.
type Codec[T any] interface {
	Serializer[T]
	Deserializer[T]
}
