package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/logger"
	"github.com/longkeyy/go-dataflow/common/statistics"
	_ "github.com/longkeyy/go-dataflow/plugins/reader/streamreader"
	_ "github.com/longkeyy/go-dataflow/plugins/writer/streamwriter"
)

const content = `{
	"reader": {"name": "streamreader", "parameter": {"sliceRecordCount": 300, "column": [{"type": "long"}, {"type": "string", "value": "x"}]}},
	"writer": {"name": "streamwriter", "parameter": {"print": false}}
}`

func job(t *testing.T, typ, compression string, groups int) config.Configuration {
	t.Helper()
	contents := content
	for range groups - 1 {
		contents += "," + content
	}
	cfg, err := config.FromJSON(fmt.Sprintf(`{"job": {
		"setting": {
			"channel": {"type": %q, "compression": %q, "bufferSize": 512, "closePollInterval": 10},
			"reportInterval": "1h",
			"metrics": {"listen": "127.0.0.1:0"}
		},
		"content": [%s]
	}}`, typ, compression, contents))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	return cfg
}

func TestEngineStart(t *testing.T) {
	tests := []struct {
		typ, compression string
		groups           int
	}{
		{"memory", "none", 1},
		{"memory", "light", 2},
		{"network", "dynamic", 2},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s/%s/%d", test.typ, test.compression, test.groups), func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			e := NewEngine(zap.New(core))
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := e.Start(ctx, job(t, test.typ, test.compression, test.groups)); err != nil {
				t.Fatalf("Start: %v", err)
			}

			total := e.Communicator().Collect()
			if got, want := total.GetLongCounter(statistics.ChannelRecordsRead), int64(300*test.groups); got != want {
				t.Errorf("records read = %d, want %d", got, want)
			}
			if total.GetState() != statistics.StateSucceeded {
				t.Errorf("state = %v", total.GetState())
			}
			if n := len(e.Communicator().IDs()); n != test.groups {
				t.Errorf("%d channels registered, want %d", n, test.groups)
			}
			if logs.FilterMessage("Job statistics").Len() != 1 || logs.FilterMessage("Serving metrics").Len() != 1 {
				t.Errorf("missing engine logs: %v", logs.All())
			}
		})
	}
}

func TestEngineConfigErrors(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	if err := e.Start(ctx, nil); err == nil {
		t.Error("Start(nil) succeeded")
	}
	if err := e.Start(ctx, job(t, "memory", "bogus", 1)); err == nil {
		t.Error("unknown compression accepted")
	}
	if err := e.Start(ctx, job(t, "carrier-pigeon", "none", 1)); err == nil {
		t.Error("unknown channel type accepted")
	}
	empty, _ := config.FromJSON(`{"job": {"content": []}}`)
	if err := e.Start(ctx, empty); err == nil {
		t.Error("empty content accepted")
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg, _ := config.FromJSON(`{"core": {"log": {"level": "debug", "outputPath": "/tmp/x.log", "development": false}}}`)
	want := logger.DefaultConfig()
	want.Level, want.OutputPath, want.Development = logger.LevelDebug, "/tmp/x.log", false
	if diff := cmp.Diff(want, loggerConfig(cfg)); diff != "" {
		t.Errorf("logger config (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(logger.DefaultConfig(), loggerConfig(config.NewConfiguration())); diff != "" {
		t.Errorf("default logger config (-want +got):\n%s", diff)
	}
}
