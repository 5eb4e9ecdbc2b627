package streamwriter

import (
	"github.com/longkeyy/go-dataflow/common/plugin"
	"github.com/longkeyy/go-dataflow/core/registry"
)

// Name is the registered plugin name.
const Name = "streamwriter"

func init() {
	registry.RegisterWriter(Name, plugin.WriterTaskFactoryFunc(func() plugin.WriterTask {
		return NewStreamWriterTask()
	}))
}
