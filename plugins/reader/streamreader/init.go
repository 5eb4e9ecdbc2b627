package streamreader

import (
	"github.com/longkeyy/go-dataflow/common/plugin"
	"github.com/longkeyy/go-dataflow/core/registry"
)

// Name is the registered plugin name.
const Name = "streamreader"

func init() {
	registry.RegisterReader(Name, plugin.ReaderTaskFactoryFunc(func() plugin.ReaderTask {
		return NewStreamReaderTask()
	}))
}
