package element

import (
	"errors"
	"testing"
	"time"
)

func TestColumnConversions(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	if v, err := NewStringColumn("42").GetAsLong(); err != nil || v != 42 {
		t.Errorf("string to long = %d, %v", v, err)
	}
	if v, err := NewDoubleColumn(2.9).GetAsLong(); err != nil || v != 2 {
		t.Errorf("double to long = %d, %v", v, err)
	}
	if v, err := NewLongColumn(ts.UnixMilli()).GetAsDate(); err != nil || !v.Equal(ts) {
		t.Errorf("long to date = %v, %v", v, err)
	}
	if v, err := NewDateColumn(ts).GetAsLong(); err != nil || v != ts.UnixMilli() {
		t.Errorf("date to long = %d, %v", v, err)
	}
	if v, err := NewLongColumn(1).GetAsBool(); err != nil || !v {
		t.Errorf("long to bool = %v, %v", v, err)
	}
	if got := NewBoolColumn(true).GetAsString(); got != "true" {
		t.Errorf("bool string = %q", got)
	}
	if got, _ := NewStringColumn("ab").GetAsBytes(); string(got) != "ab" {
		t.Errorf("string bytes = %q", got)
	}
	if _, err := NewBoolColumn(true).GetAsDouble(); err == nil {
		t.Error("bool to double should fail")
	}
	if _, err := NewBytesColumn([]byte{1}).GetAsDate(); err == nil {
		t.Error("bytes to date should fail")
	}
}

func TestNullColumns(t *testing.T) {
	for _, c := range []Column{NewNullColumn(TypeLong), NewStringColumn(""), NewBytesColumn(nil)} {
		if !c.IsNull() {
			t.Errorf("%s column should be null", c.GetType())
		}
		if c.GetRawData() != nil || c.GetByteSize() != 0 || c.GetAsString() != "" {
			t.Errorf("%s null column exposes data", c.GetType())
		}
		if _, err := c.GetAsLong(); !errors.Is(err, ErrNullValue) {
			t.Errorf("GetAsLong err = %v, want ErrNullValue", err)
		}
	}
	if got := NewNullColumn(TypeDate).GetType(); got != TypeDate {
		t.Errorf("null column type = %s, want date", got)
	}
}

func TestRecord(t *testing.T) {
	r := NewRecord()
	r.AddColumn(NewLongColumn(1))
	r.SetColumn(2, NewStringColumn("xy"))

	if r.GetColumnNumber() != 3 {
		t.Fatalf("columns = %d, want 3", r.GetColumnNumber())
	}
	if got := r.String(); got != "[1, null, xy]" {
		t.Errorf("String() = %q", got)
	}
	if got := r.GetByteSize(); got != 10 {
		t.Errorf("GetByteSize() = %d, want 10", got)
	}
	if r.GetColumn(5) != nil || r.GetColumn(-1) != nil {
		t.Error("out of range column should be nil")
	}
	r.SetColumn(-1, NewLongColumn(9))

	r.Reset()
	if r.GetColumnNumber() != 0 {
		t.Errorf("columns after Reset = %d", r.GetColumnNumber())
	}
}
