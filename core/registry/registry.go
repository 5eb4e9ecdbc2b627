// Package registry maps plugin names to task factories.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/longkeyy/go-dataflow/common/plugin"
)

// GlobalRegistry 全局插件注册表，插件在init()中注册
var GlobalRegistry = NewPluginRegistry()

// RegisterReader 注册Reader插件，名称重复时panic
func RegisterReader(name string, factory plugin.ReaderTaskFactory) {
	if err := GlobalRegistry.RegisterReaderTask(name, factory); err != nil {
		panic(err)
	}
}

// RegisterWriter 注册Writer插件，名称重复时panic
func RegisterWriter(name string, factory plugin.WriterTaskFactory) {
	if err := GlobalRegistry.RegisterWriterTask(name, factory); err != nil {
		panic(err)
	}
}

// PluginRegistry is safe for concurrent use.
type PluginRegistry struct {
	readerTasks map[string]plugin.ReaderTaskFactory
	writerTasks map[string]plugin.WriterTaskFactory
	mutex       sync.RWMutex
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		readerTasks: make(map[string]plugin.ReaderTaskFactory),
		writerTasks: make(map[string]plugin.WriterTaskFactory),
	}
}

func (r *PluginRegistry) RegisterReaderTask(name string, factory plugin.ReaderTaskFactory) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.readerTasks[name]; exists {
		return fmt.Errorf("reader task '%s' already registered", name)
	}
	r.readerTasks[name] = factory
	return nil
}

func (r *PluginRegistry) RegisterWriterTask(name string, factory plugin.WriterTaskFactory) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.writerTasks[name]; exists {
		return fmt.Errorf("writer task '%s' already registered", name)
	}
	r.writerTasks[name] = factory
	return nil
}

func (r *PluginRegistry) GetReaderTask(name string) (plugin.ReaderTaskFactory, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	factory, exists := r.readerTasks[name]
	if !exists {
		return nil, fmt.Errorf("reader task '%s' not found", name)
	}
	return factory, nil
}

func (r *PluginRegistry) GetWriterTask(name string) (plugin.WriterTaskFactory, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	factory, exists := r.writerTasks[name]
	if !exists {
		return nil, fmt.Errorf("writer task '%s' not found", name)
	}
	return factory, nil
}

// ListPlugins returns the sorted names registered for typ.
func (r *PluginRegistry) ListPlugins(typ plugin.PluginType) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var names []string
	if typ == plugin.WriterPlugin {
		for name := range r.writerTasks {
			names = append(names, name)
		}
	} else {
		for name := range r.readerTasks {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
