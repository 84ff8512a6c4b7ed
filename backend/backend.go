// Package backend defines the narrow contract every storage engine is
// adapted to, and a registry of the engines the driver can open.
package backend

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Backend is the capability set the benchmark drives. All calls block
// until complete. Query treats a missing key as success; every other
// failure is returned as is and must not be retried by the adapter.
// Update has upsert semantics and behaves exactly like Insert.
type Backend interface {
	Name() string
	Query(key []byte) error
	Insert(key, value []byte) error
	Update(key, value []byte) error
	Sync() error
}

// Engine is a Backend whose lifecycle is owned by the caller.
type Engine interface {
	Backend
	Close() error
}

// Options holds engine-local configuration shared by all adapters.
type Options struct {
	// Fsync makes every write durable before it returns.
	Fsync bool

	// Compression names a value codec for engines that support one
	// ("none", "snappy", "zstd"). Engines without the knob ignore it.
	Compression string
}

// Factory opens an engine rooted at dir. The directory is created when
// missing; it is expected to be empty.
type Factory func(dir string, opts Options) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under name. Registering the same
// name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[name]; dup {
		panic("backend: duplicate registration of " + name)
	}
	registry[name] = f
}

// Known returns the registered engine names in sorted order.
func Known() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Open opens the named engine in dir.
func Open(name, dir string, opts Options) (Engine, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown backend %q (known: %v)", name, Known())
	}

	e, err := f(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}

	return e, nil
}

// DefaultComparison is the engine pair benchmarked when none is chosen:
// the file-backed log engine against an LSM tree.
func DefaultComparison() []string {
	return []string{"logkv", "leveldb"}
}
