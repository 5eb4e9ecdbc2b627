package serde

import "github.com/tinylib/msgp/msgp"

// Msgp encodes records whose pointer type has msgp generated marshalers.
type Msgp[T any, PT msgpable[T]] struct{}

type msgpable[T any] interface {
	*T
	msgp.Marshaler
	msgp.Unmarshaler
}

func (Msgp[T, PT]) Serialize(dst []byte, record T) ([]byte, error) {
	return PT(&record).MarshalMsg(dst)
}

func (Msgp[T, PT]) Deserialize(data []byte, target T) (T, error) {
	if _, err := PT(&target).UnmarshalMsg(data); err != nil {
		var zero T
		return zero, err
	}
	return target, nil
}
