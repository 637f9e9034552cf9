package loader

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

var builtinTypes = map[string]reflect.Type{
	"string":   reflect.TypeOf(""),
	"bool":     reflect.TypeOf(false),
	"int":      reflect.TypeOf(0),
	"int64":    reflect.TypeOf(int64(0)),
	"uint":     reflect.TypeOf(uint(0)),
	"float64":  reflect.TypeOf(float64(0)),
	"duration": reflect.TypeOf(time.Duration(0)),
	"time":     reflect.TypeOf(time.Time{}),
}

type typeEntry struct {
	typ   reflect.Type
	ctors []registry.Constructor
}

// TypeRegistry maps the type names used in definition files to Go types and
// the construction functions they publish. Definition files can only name
// what has been registered here.
type TypeRegistry struct {
	mu        sync.RWMutex
	types     map[string]typeEntry
	factories map[string][]registry.Constructor
}

// NewTypeRegistry creates an empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:     make(map[string]typeEntry),
		factories: make(map[string][]registry.Constructor),
	}
}

// Register publishes typ under name together with its constructors.
//
// Example:
//
//	types.Register("app.Server", reflect.TypeOf(&Server{}), registry.Ctor(NewServer, "addr"))
func (t *TypeRegistry) Register(name string, typ reflect.Type, ctors ...registry.Constructor) error {
	if name == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if typ == nil {
		return fmt.Errorf("type %q cannot be nil", name)
	}
	for i, c := range ctors {
		if c.Fn == nil || reflect.TypeOf(c.Fn).Kind() != reflect.Func {
			return fmt.Errorf("constructor %d of type %q is not a function", i, name)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.types[name]; exists {
		return fmt.Errorf("type %q is already registered", name)
	}
	t.types[name] = typeEntry{typ: typ, ctors: ctors}
	return nil
}

// RegisterFactory publishes static factory functions under name. A bean
// selects them with `factory = "<name>"`, and one of them by function name
// with factory_method.
func (t *TypeRegistry) RegisterFactory(name string, fns ...registry.Constructor) error {
	if name == "" {
		return fmt.Errorf("factory name cannot be empty")
	}
	if len(fns) == 0 {
		return fmt.Errorf("factory %q needs at least one function", name)
	}
	for i, c := range fns {
		if c.Fn == nil || reflect.TypeOf(c.Fn).Kind() != reflect.Func {
			return fmt.Errorf("factory %q function %d is not a function", name, i)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = append(t.factories[name], fns...)
	return nil
}

// Lookup returns the type registered under name and its constructors.
// Builtin names such as "string" or "duration" resolve without
// registration and have no constructors.
func (t *TypeRegistry) Lookup(name string) (reflect.Type, []registry.Constructor, bool) {
	t.mu.RLock()
	entry, ok := t.types[name]
	t.mu.RUnlock()
	if ok {
		return entry.typ, append([]registry.Constructor(nil), entry.ctors...), true
	}
	if typ, ok := builtinTypes[name]; ok {
		return typ, nil, true
	}
	return nil, nil, false
}

// Factory returns the functions registered with RegisterFactory under name.
func (t *TypeRegistry) Factory(name string) ([]registry.Constructor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fns, ok := t.factories[name]
	return append([]registry.Constructor(nil), fns...), ok
}

// Names returns the registered type names, sorted.
func (t *TypeRegistry) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.types))
	for name := range t.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
