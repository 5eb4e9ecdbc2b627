package element

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ColumnType identifies the value kind stored in a column.
type ColumnType uint8

const (
	TypeNull ColumnType = iota
	TypeLong
	TypeDouble
	TypeString
	TypeDate
	TypeBool
	TypeBytes
)

func (t ColumnType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeLong:
		return "long"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// ErrNullValue is returned when a null column is converted.
var ErrNullValue = errors.New("null value cannot be converted")

// Column is one typed cell of a record.
type Column interface {
	GetType() ColumnType
	GetRawData() interface{}
	GetAsString() string
	GetAsLong() (int64, error)
	GetAsDouble() (float64, error)
	GetAsDate() (time.Time, error)
	GetAsBool() (bool, error)
	GetAsBytes() ([]byte, error)
	IsNull() bool
	GetByteSize() int
}

// value is the single Column implementation. Only the field matching typ is
// meaningful.
type value struct {
	typ  ColumnType
	null bool
	l    int64
	d    float64
	s    string
	t    time.Time
	b    []byte
}

func NewLongColumn(v int64) Column { return &value{typ: TypeLong, l: v} }

func NewDoubleColumn(v float64) Column { return &value{typ: TypeDouble, d: v} }

// NewStringColumn returns a string column. The empty string is stored as null,
// matching how readers report missing text.
func NewStringColumn(v string) Column {
	return &value{typ: TypeString, s: v, null: v == ""}
}

func NewDateColumn(v time.Time) Column { return &value{typ: TypeDate, t: v} }

func NewBoolColumn(v bool) Column {
	c := &value{typ: TypeBool}
	if v {
		c.l = 1
	}
	return c
}

func NewBytesColumn(v []byte) Column {
	return &value{typ: TypeBytes, b: v, null: v == nil}
}

// NewNullColumn returns a null column that still remembers its type.
func NewNullColumn(t ColumnType) Column { return &value{typ: t, null: true} }

func (c *value) GetType() ColumnType { return c.typ }

func (c *value) IsNull() bool { return c.null || c.typ == TypeNull }

func (c *value) GetRawData() interface{} {
	if c.IsNull() {
		return nil
	}
	switch c.typ {
	case TypeLong:
		return c.l
	case TypeDouble:
		return c.d
	case TypeString:
		return c.s
	case TypeDate:
		return c.t
	case TypeBool:
		return c.l != 0
	case TypeBytes:
		return c.b
	}
	return nil
}

func (c *value) GetByteSize() int {
	if c.IsNull() {
		return 0
	}
	switch c.typ {
	case TypeString:
		return len(c.s)
	case TypeBytes:
		return len(c.b)
	case TypeBool:
		return 1
	default:
		return 8
	}
}

func (c *value) GetAsString() string {
	if c.IsNull() {
		return ""
	}
	switch c.typ {
	case TypeLong:
		return strconv.FormatInt(c.l, 10)
	case TypeDouble:
		return strconv.FormatFloat(c.d, 'g', -1, 64)
	case TypeString:
		return c.s
	case TypeDate:
		return c.t.Format(time.RFC3339Nano)
	case TypeBool:
		return strconv.FormatBool(c.l != 0)
	case TypeBytes:
		return string(c.b)
	}
	return ""
}

func (c *value) GetAsLong() (int64, error) {
	if c.IsNull() {
		return 0, ErrNullValue
	}
	switch c.typ {
	case TypeLong, TypeBool:
		return c.l, nil
	case TypeDouble:
		return int64(c.d), nil
	case TypeDate:
		return c.t.UnixMilli(), nil
	case TypeString:
		return strconv.ParseInt(c.s, 10, 64)
	}
	return 0, c.conversionError("long")
}

func (c *value) GetAsDouble() (float64, error) {
	if c.IsNull() {
		return 0, ErrNullValue
	}
	switch c.typ {
	case TypeLong:
		return float64(c.l), nil
	case TypeDouble:
		return c.d, nil
	case TypeString:
		return strconv.ParseFloat(c.s, 64)
	}
	return 0, c.conversionError("double")
}

func (c *value) GetAsDate() (time.Time, error) {
	if c.IsNull() {
		return time.Time{}, ErrNullValue
	}
	switch c.typ {
	case TypeDate:
		return c.t, nil
	case TypeLong:
		return time.UnixMilli(c.l), nil
	case TypeString:
		return time.Parse(time.RFC3339Nano, c.s)
	}
	return time.Time{}, c.conversionError("date")
}

func (c *value) GetAsBool() (bool, error) {
	if c.IsNull() {
		return false, ErrNullValue
	}
	switch c.typ {
	case TypeBool, TypeLong:
		return c.l != 0, nil
	case TypeString:
		return strconv.ParseBool(c.s)
	}
	return false, c.conversionError("bool")
}

func (c *value) GetAsBytes() ([]byte, error) {
	if c.IsNull() {
		return nil, ErrNullValue
	}
	if c.typ == TypeBytes {
		return c.b, nil
	}
	return []byte(c.GetAsString()), nil
}

func (c *value) conversionError(to string) error {
	return fmt.Errorf("%s cannot be converted to %s", c.typ, to)
}
