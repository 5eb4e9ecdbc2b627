package plugin

// PluginType tells readers from writers.
type PluginType int

const (
	ReaderPlugin PluginType = iota
	WriterPlugin
)

func (t PluginType) String() string {
	if t == WriterPlugin {
		return "writer"
	}
	return "reader"
}

type ReaderTaskFactory interface {
	CreateReaderTask() ReaderTask
}

type WriterTaskFactory interface {
	CreateWriterTask() WriterTask
}

// ReaderTaskFactoryFunc adapts a function to ReaderTaskFactory.
type ReaderTaskFactoryFunc func() ReaderTask

func (f ReaderTaskFactoryFunc) CreateReaderTask() ReaderTask { return f() }

// WriterTaskFactoryFunc adapts a function to WriterTaskFactory.
type WriterTaskFactoryFunc func() WriterTask

func (f WriterTaskFactoryFunc) CreateWriterTask() WriterTask { return f() }
