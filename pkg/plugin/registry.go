package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownType = errors.New("unknown plugin type")

// Registry maps type names to constructors. Registration happens at
// program init (typically from a package init function); lookups happen
// at load time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a constructor under a type name. It panics on an empty
// name, a nil factory or a duplicate registration, matching the
// database/sql driver convention: these are programmer errors at init
// time, not runtime conditions.
func (r *Registry) Register(typeName string, f Factory) {
	if typeName == "" {
		panic("plugin: Register with empty type name")
	}
	if f == nil {
		panic("plugin: Register with nil factory for type " + typeName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[typeName]; dup {
		panic("plugin: Register called twice for type " + typeName)
	}
	r.factories[typeName] = f
}

// Create instantiates a plugin of the given type. Unknown types return
// ErrUnknownType; a panicking factory is recovered and reported as an
// error so a broken plugin cannot take the host down.
func (r *Registry) Create(typeName string) (p Plugin, err error) {
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	defer func() {
		if rec := recover(); rec != nil {
			p = nil
			err = fmt.Errorf("factory for type %s panicked: %v", typeName, rec)
		}
	}()

	p, err = f()
	if err != nil {
		return nil, fmt.Errorf("factory for type %s failed: %w", typeName, err)
	}
	if p == nil {
		return nil, fmt.Errorf("factory for type %s returned no instance", typeName)
	}
	return p, nil
}

// Types returns the registered type names, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry used when no explicit registry is
// configured on the host.
var Default = NewRegistry()

// Register adds a constructor to the default registry
func Register(typeName string, f Factory) {
	Default.Register(typeName, f)
}

// Create instantiates a type from the default registry
func Create(typeName string) (Plugin, error) {
	return Default.Create(typeName)
}

// Types lists the default registry's type names
func Types() []string {
	return Default.Types()
}
