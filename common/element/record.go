package element

import "strings"

// Record is a row of columns transported through a channel.
type Record interface {
	AddColumn(column Column)
	SetColumn(index int, column Column)
	GetColumn(index int) Column
	GetColumnNumber() int
	GetByteSize() int
	// Reset drops all columns so the record can be reused as a read target.
	Reset()
	String() string
}

// DefaultRecord stores its columns in a slice.
type DefaultRecord struct {
	columns []Column
}

func NewRecord() *DefaultRecord {
	return &DefaultRecord{columns: make([]Column, 0, 8)}
}

func (r *DefaultRecord) AddColumn(column Column) {
	r.columns = append(r.columns, column)
}

// SetColumn replaces the column at index, growing the record with null string
// columns when index is past the end. Negative indexes are ignored.
func (r *DefaultRecord) SetColumn(index int, column Column) {
	if index < 0 {
		return
	}
	for len(r.columns) <= index {
		r.columns = append(r.columns, NewNullColumn(TypeString))
	}
	r.columns[index] = column
}

func (r *DefaultRecord) GetColumn(index int) Column {
	if index < 0 || index >= len(r.columns) {
		return nil
	}
	return r.columns[index]
}

func (r *DefaultRecord) GetColumnNumber() int {
	return len(r.columns)
}

func (r *DefaultRecord) GetByteSize() int {
	size := 0
	for _, col := range r.columns {
		size += col.GetByteSize()
	}
	return size
}

func (r *DefaultRecord) Reset() {
	clear(r.columns)
	r.columns = r.columns[:0]
}

func (r *DefaultRecord) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, col := range r.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		if col.IsNull() {
			sb.WriteString("null")
		} else {
			sb.WriteString(col.GetAsString())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
