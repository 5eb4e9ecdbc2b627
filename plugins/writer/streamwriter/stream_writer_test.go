package streamwriter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/element"
	"github.com/longkeyy/go-dataflow/common/plugin"
	"github.com/longkeyy/go-dataflow/core/registry"
)

type feeder struct {
	records []element.Record
	err     error
}

func (f *feeder) GetFromReader() (element.Record, error) {
	if len(f.records) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, plugin.ErrChannelClosed
	}
	r := f.records[0]
	f.records = f.records[1:]
	return r, nil
}

func (f *feeder) Shutdown() error { return nil }

func sample() []element.Record {
	r := element.NewRecord()
	r.AddColumn(element.NewLongColumn(7))
	r.AddColumn(element.NewDoubleColumn(1.5))
	r.AddColumn(element.NewBoolColumn(true))
	r.AddColumn(element.NewDateColumn(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	r.AddColumn(element.NewBytesColumn([]byte{0xca, 0xfe}))
	r.AddColumn(element.NewStringColumn("x"))
	r.AddColumn(element.NewNullColumn(element.TypeString))
	return []element.Record{r}
}

func TestStartWrite(t *testing.T) {
	cfg, _ := config.FromJSON(`{"parameter": {"fieldDelimiter": ","}}`)
	task := NewStreamWriterTask()
	var out bytes.Buffer
	task.output = &out
	if err := task.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := task.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := task.StartWrite(context.Background(), &feeder{records: sample()}); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	want := "7,1.500000,true,2024-01-02 03:04:05,cafe,x,\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	if task.RecordCount() != 1 {
		t.Errorf("RecordCount = %d", task.RecordCount())
	}
	if err := task.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
}

func TestStartWriteToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	cfg := config.NewConfiguration()
	cfg.Set("parameter.path", dir)
	cfg.Set("parameter.fileName", "data.txt")
	task := NewStreamWriterTask()
	if err := task.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := task.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := task.StartWrite(context.Background(), &feeder{records: sample()}); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	if err := task.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "data.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := "7\t1.500000\ttrue\t2024-01-02 03:04:05\tcafe\tx\t\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestStartWriteReceiveError(t *testing.T) {
	cause := errors.New("fault")
	task := NewStreamWriterTask()
	task.output = &bytes.Buffer{}
	if err := task.Init(config.NewConfiguration()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := task.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := task.StartWrite(context.Background(), &feeder{err: cause}); !errors.Is(err, cause) {
		t.Errorf("StartWrite: got %v, want %v", err, cause)
	}
}

func TestRegistered(t *testing.T) {
	if _, err := registry.GlobalRegistry.GetWriterTask(Name); err != nil {
		t.Error(err)
	}
}
