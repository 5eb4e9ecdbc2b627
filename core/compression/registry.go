package compression

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Indexes of the built-in libraries. Compression events refer to libraries
// by these numbers, so they must agree between producer and consumer.
const (
	Snappy = 0
	LZ4    = 1
	Zstd   = 2
	Brotli = 3
)

var (
	ErrBufferTooSmall   = errors.New("compression: destination buffer too small")
	ErrUnknownLibrary   = errors.New("compression: unknown library")
	ErrSwitchNotAllowed = errors.New("compression: level does not allow switching libraries")
)

// Library compresses and decompresses whole blocks. A Library instance is used
// by one channel at a time.
type Library interface {
	Name() string
	// Compress writes the compressed form of src into dst and returns its
	// length.
	Compress(dst, src []byte) (int, error)
	// Decompress writes the original bytes of src into dst and returns their
	// length.
	Decompress(dst, src []byte) (int, error)
	Close() error
}

// LibraryFactory creates a fresh Library instance.
type LibraryFactory func() (Library, error)

type registration struct {
	name    string
	factory LibraryFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[int]registration)
)

// Register makes a library available under index.
func Register(index int, name string, factory LibraryFactory) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, exists := registry[index]; exists {
		return fmt.Errorf("library index %d already registered by %s", index, existing.name)
	}
	registry[index] = registration{name: name, factory: factory}
	return nil
}

func mustRegister(index int, name string, factory LibraryFactory) {
	if err := Register(index, name, factory); err != nil {
		panic(err)
	}
}

// NewLibrary instantiates the library registered under index.
func NewLibrary(index int) (Library, error) {
	registryMu.RLock()
	reg, ok := registry[index]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownLibrary, index)
	}
	return reg.factory()
}

// Libraries lists the registered library indexes in ascending order.
func Libraries() []int {
	registryMu.RLock()
	defer registryMu.RUnlock()

	indexes := make([]int, 0, len(registry))
	for index := range registry {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	return indexes
}

// LibraryName returns the name registered under index.
func LibraryName(index int) string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if reg, ok := registry[index]; ok {
		return reg.name
	}
	return fmt.Sprintf("library(%d)", index)
}
