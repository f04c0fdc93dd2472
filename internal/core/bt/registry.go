package bt

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Prototype constructs a fresh, unconfigured Kind.
type Prototype func() Kind

type registration struct {
	proto  Prototype
	static Footprint
}

// Registry maps type names to node kind prototypes. It is passed to Compile
// explicitly; there is no package-level registry.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]registration)}
}

// Register adds or replaces a type. The static footprint is taken from the
// concrete value the prototype returns.
func (r *Registry) Register(name string, proto Prototype) error {
	if name == "" || proto == nil {
		return fmt.Errorf("%w: %q", ErrBadKind, name)
	}
	sample := proto()
	if sample == nil {
		return fmt.Errorf("%w: %q prototype returned nil", ErrBadKind, name)
	}
	r.mu.Lock()
	r.kinds[name] = registration{proto: proto, static: staticFootprint(sample)}
	r.mu.Unlock()
	return nil
}

// RegisterKind registers *T under name, constructing a zero T per node.
func RegisterKind[T any, PT interface {
	*T
	Kind
}](r *Registry, name string) error {
	return r.Register(name, func() Kind { return PT(new(T)) })
}

// MustRegister is Register that panics; meant for static setup.
func (r *Registry) MustRegister(name string, proto Prototype) {
	if err := r.Register(name, proto); err != nil {
		panic(err)
	}
}

// Lookup returns the prototype and static footprint registered for name.
func (r *Registry) Lookup(name string) (Prototype, Footprint, bool) {
	r.mu.RLock()
	reg, ok := r.kinds[name]
	r.mu.RUnlock()
	return reg.proto, reg.static, ok
}

// Names returns registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func staticFootprint(k Kind) Footprint {
	t := reflect.TypeOf(k)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Footprint{Size: t.Size(), Align: uintptr(t.Align())}
}
