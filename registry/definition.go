package registry

import (
	"fmt"
	"reflect"
	"sync"
)

// Scope names built into every factory.
const (
	// ScopeDefault leaves the scope unset; it resolves to singleton on merge
	// unless inherited from a parent or containing definition.
	ScopeDefault   = ""
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

// AutowireMode selects implicit dependency injection for a definition.
type AutowireMode string

const (
	// AutowireDefault inherits the parent's mode, or no autowiring at the root.
	AutowireDefault     AutowireMode = ""
	AutowireNo          AutowireMode = "no"
	AutowireByName      AutowireMode = "byName"
	AutowireByType      AutowireMode = "byType"
	AutowireConstructor AutowireMode = "constructor"
)

// DependencyCheck selects which unset properties are treated as errors once
// population is complete.
type DependencyCheck int

const (
	DependencyCheckNone DependencyCheck = iota
	// DependencyCheckObjects checks properties referring to other beans.
	DependencyCheckObjects
	// DependencyCheckSimple checks literal properties (strings, numbers, ...).
	DependencyCheckSimple
	// DependencyCheckAll checks both kinds.
	DependencyCheckAll
)

// InferDestroyMethod asks the factory to detect a Close or Shutdown method.
const InferDestroyMethod = "(inferred)"

// Constructor is a construction function a type publishes: func(...) T or
// func(...) (T, error). ParamNames optionally names the parameters so that
// named arguments can be matched; Name identifies factory functions.
type Constructor struct {
	Name       string
	Fn         any
	ParamNames []string
}

// Ctor builds a Constructor from fn with optional parameter names.
func Ctor(fn any, paramNames ...string) Constructor {
	return Constructor{Fn: fn, ParamNames: paramNames}
}

// Func builds a named factory function.
func Func(name string, fn any, paramNames ...string) Constructor {
	return Constructor{Name: name, Fn: fn, ParamNames: paramNames}
}

// ParamName returns the declared name of parameter i, or "".
func (c Constructor) ParamName(i int) string {
	if i < len(c.ParamNames) {
		return c.ParamNames[i]
	}
	return ""
}

// MethodOverride replaces a func-typed field of the bean after construction.
type MethodOverride interface {
	FieldName() string
}

// LookupOverride installs a func field returning the named bean on every
// call. An empty Bean resolves the func's return type instead.
type LookupOverride struct {
	Field string
	Bean  string
}

// FieldName implements MethodOverride.
func (o LookupOverride) FieldName() string { return o.Field }

// ReplaceOverride installs a func field that forwards its calls to the
// MethodReplacer bean named Replacer.
type ReplaceOverride struct {
	Field    string
	Replacer string
}

// FieldName implements MethodOverride.
func (o ReplaceOverride) FieldName() string { return o.Field }

// BeanDefinition is the declarative construction and wiring metadata of one
// bean. Zero-valued fields mean "unset" so that a child definition inherits
// them from its parent.
type BeanDefinition struct {
	// Type is the bean type, usually a pointer to struct. It may be nil when
	// the bean is produced by a factory method or supplier.
	Type reflect.Type

	Scope    string
	Lazy     *bool
	Abstract bool
	Parent   string

	DependsOn []string

	ConstructorArgs *ConstructorArgs
	Properties      *PropertyValues

	InitMethod    string
	DestroyMethod string

	Autowire          AutowireMode
	AutowireCandidate *bool
	Primary           bool
	Priority          *int
	Qualifiers        []string
	DependencyCheck   DependencyCheck

	// Constructors are the construction functions the type publishes.
	Constructors []Constructor

	// FactoryFuncs are static factory functions; FactoryMethod selects
	// candidates by name when set.
	FactoryFuncs  []Constructor
	FactoryBean   string
	FactoryMethod string

	// Supplier replaces every other construction path when set.
	Supplier func() (any, error)

	MethodOverrides []MethodOverride

	// FactoryObjectType declares the product type of a FactoryBean so type
	// queries can answer without creating the factory.
	FactoryObjectType reflect.Type

	Synthetic   bool
	Description string
}

// IsSingleton reports whether the scope is singleton (or unset).
func (d *BeanDefinition) IsSingleton() bool {
	return d.Scope == ScopeSingleton || d.Scope == ScopeDefault
}

// IsPrototype reports whether the scope is prototype.
func (d *BeanDefinition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// IsLazy reports whether eager pre-instantiation should skip the bean.
func (d *BeanDefinition) IsLazy() bool {
	return d.Lazy != nil && *d.Lazy
}

// IsAutowireCandidate reports whether the bean may be injected by type.
func (d *BeanDefinition) IsAutowireCandidate() bool {
	return d.AutowireCandidate == nil || *d.AutowireCandidate
}

// HasConstructorArgs reports whether explicit constructor arguments exist.
func (d *BeanDefinition) HasConstructorArgs() bool {
	return !d.ConstructorArgs.IsEmpty()
}

// HasQualifier reports whether q is among the definition's qualifiers.
func (d *BeanDefinition) HasQualifier(q string) bool {
	for _, have := range d.Qualifiers {
		if have == q {
			return true
		}
	}
	return false
}

// ResolvedAutowire returns the effective autowire mode.
func (d *BeanDefinition) ResolvedAutowire() AutowireMode {
	if d.Autowire == AutowireDefault {
		return AutowireNo
	}
	return d.Autowire
}

// Validate checks the definition for combinations that can never be built.
func (d *BeanDefinition) Validate() error {
	if d.FactoryMethod != "" && len(d.MethodOverrides) > 0 {
		return fmt.Errorf("cannot combine a factory method with method overrides: the factory method must create the concrete instance")
	}
	for _, o := range d.MethodOverrides {
		if o == nil || o.FieldName() == "" {
			return fmt.Errorf("method override must name a field")
		}
	}
	for i, c := range d.Constructors {
		if c.Fn == nil || reflect.TypeOf(c.Fn).Kind() != reflect.Func {
			return fmt.Errorf("constructor %d is not a function", i)
		}
	}
	for i, c := range d.FactoryFuncs {
		if c.Fn == nil || reflect.TypeOf(c.Fn).Kind() != reflect.Func {
			return fmt.Errorf("factory function %d is not a function", i)
		}
	}
	if d.FactoryMethod == "" && len(d.FactoryFuncs) > 0 && d.FactoryBean != "" {
		return fmt.Errorf("factory bean %q requires a factory method name", d.FactoryBean)
	}
	return nil
}

// Clone returns a deep copy of the definition's own collections. Values stored
// inside properties and arguments are shared.
func (d *BeanDefinition) Clone() *BeanDefinition {
	c := *d
	if d.Lazy != nil {
		v := *d.Lazy
		c.Lazy = &v
	}
	if d.AutowireCandidate != nil {
		v := *d.AutowireCandidate
		c.AutowireCandidate = &v
	}
	if d.Priority != nil {
		v := *d.Priority
		c.Priority = &v
	}
	c.DependsOn = cloneStrings(d.DependsOn)
	c.Qualifiers = cloneStrings(d.Qualifiers)
	c.ConstructorArgs = d.ConstructorArgs.Copy()
	c.Properties = d.Properties.Copy()
	c.Constructors = append([]Constructor(nil), d.Constructors...)
	c.FactoryFuncs = append([]Constructor(nil), d.FactoryFuncs...)
	c.MethodOverrides = append([]MethodOverride(nil), d.MethodOverrides...)
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// MergedDefinition is the flattened form of a definition after its parent
// chain has been applied. It also carries per-definition state that the
// factory memoizes between creations.
type MergedDefinition struct {
	BeanDefinition

	mu            sync.Mutex
	postProcessed bool
	resolution    any
}

func newMerged(def *BeanDefinition) *MergedDefinition {
	return &MergedDefinition{BeanDefinition: *def}
}

// PostProcessOnce runs fn the first time it is called successfully for this
// merged definition. Later calls are no-ops.
func (m *MergedDefinition) PostProcessOnce(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postProcessed {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	m.postProcessed = true
	return nil
}

// Resolution returns the construction decision cached by CacheResolution.
func (m *MergedDefinition) Resolution() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolution
}

// CacheResolution records a construction decision for later creations.
func (m *MergedDefinition) CacheResolution(v any) {
	m.mu.Lock()
	m.resolution = v
	m.mu.Unlock()
}
