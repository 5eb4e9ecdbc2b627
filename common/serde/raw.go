package serde

// Raw passes byte slices through unchanged.
type Raw struct{}

var _ Codec[[]byte] = Raw{}

func (Raw) Serialize(dst []byte, record []byte) ([]byte, error) {
	return append(dst, record...), nil
}

// Deserialize copies data into target, growing it when needed.
func (Raw) Deserialize(data []byte, target []byte) ([]byte, error) {
	return append(target[:0], data...), nil
}
