package serde

import (
	"fmt"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/longkeyy/go-dataflow/common/element"
)

// Element encodes element.Record values as a MessagePack array of
// (type, value) pairs. Null columns carry a nil value.
type Element struct{}

var _ Codec[element.Record] = Element{}

func (Element) Serialize(dst []byte, record element.Record) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("serialize: nil record")
	}
	n := record.GetColumnNumber()
	dst = msgp.AppendArrayHeader(dst, uint32(n*2))
	for i := 0; i < n; i++ {
		col := record.GetColumn(i)
		dst = msgp.AppendUint8(dst, uint8(col.GetType()))
		if col.IsNull() {
			dst = msgp.AppendNil(dst)
			continue
		}
		switch col.GetType() {
		case element.TypeLong:
			v, _ := col.GetAsLong()
			dst = msgp.AppendInt64(dst, v)
		case element.TypeDouble:
			v, _ := col.GetAsDouble()
			dst = msgp.AppendFloat64(dst, v)
		case element.TypeString:
			dst = msgp.AppendString(dst, col.GetAsString())
		case element.TypeDate:
			v, _ := col.GetAsDate()
			dst = msgp.AppendTime(dst, v)
		case element.TypeBool:
			v, _ := col.GetAsBool()
			dst = msgp.AppendBool(dst, v)
		case element.TypeBytes:
			v, _ := col.GetAsBytes()
			dst = msgp.AppendBytes(dst, v)
		default:
			return nil, fmt.Errorf("serialize column %d: unsupported type %s", i, col.GetType())
		}
	}
	return dst, nil
}

// Deserialize decodes into target when it is non-nil, otherwise into a new
// record.
func (Element) Deserialize(data []byte, target element.Record) (element.Record, error) {
	if target == nil {
		target = element.NewRecord()
	} else {
		target.Reset()
	}

	sz, data, err := msgp.ReadArrayHeaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("read column header: %w", err)
	}
	if sz%2 != 0 {
		return nil, fmt.Errorf("read column header: odd element count %d", sz)
	}

	for i := uint32(0); i < sz/2; i++ {
		var t uint8
		if t, data, err = msgp.ReadUint8Bytes(data); err != nil {
			return nil, fmt.Errorf("read column %d type: %w", i, err)
		}
		typ := element.ColumnType(t)

		if msgp.IsNil(data) {
			if data, err = msgp.ReadNilBytes(data); err != nil {
				return nil, fmt.Errorf("read column %d: %w", i, err)
			}
			target.AddColumn(element.NewNullColumn(typ))
			continue
		}

		var col element.Column
		switch typ {
		case element.TypeLong:
			var v int64
			v, data, err = msgp.ReadInt64Bytes(data)
			col = element.NewLongColumn(v)
		case element.TypeDouble:
			var v float64
			v, data, err = msgp.ReadFloat64Bytes(data)
			col = element.NewDoubleColumn(v)
		case element.TypeString:
			var v string
			v, data, err = msgp.ReadStringBytes(data)
			col = element.NewStringColumn(v)
		case element.TypeDate:
			var v time.Time
			v, data, err = msgp.ReadTimeBytes(data)
			col = element.NewDateColumn(v)
		case element.TypeBool:
			var v bool
			v, data, err = msgp.ReadBoolBytes(data)
			col = element.NewBoolColumn(v)
		case element.TypeBytes:
			var v []byte
			v, data, err = msgp.ReadBytesBytes(data, nil)
			col = element.NewBytesColumn(v)
		default:
			return nil, fmt.Errorf("read column %d: unsupported type %s", i, typ)
		}
		if err != nil {
			return nil, fmt.Errorf("read column %d value: %w", i, err)
		}
		target.AddColumn(col)
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("read record: %d trailing bytes", len(data))
	}
	return target, nil
}
