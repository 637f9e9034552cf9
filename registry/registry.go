// Package registry provides thread-safe storage of bean definitions and
// aliases, and flattens parent/child definitions into merged definitions.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry stores bean definitions by name in registration order.
// All methods are goroutine-safe; the merged-definition cache is guarded
// separately so lookups never wait on registration.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*BeanDefinition
	names       []string
	aliases     map[string]string

	mergedMu sync.RWMutex
	merged   map[string]*MergedDefinition

	allowOverriding bool
	parentLookup    func(name string) (*MergedDefinition, error)
	resetHooks      []func(name string)
}

// New creates an empty Registry. Overriding is disabled.
func New() *Registry {
	return &Registry{
		definitions: make(map[string]*BeanDefinition),
		aliases:     make(map[string]string),
		merged:      make(map[string]*MergedDefinition),
	}
}

// SetAllowOverriding controls whether Register and RegisterAlias may replace
// existing entries.
func (r *Registry) SetAllowOverriding(allow bool) {
	r.mu.Lock()
	r.allowOverriding = allow
	r.mu.Unlock()
}

// AllowOverriding reports the overriding policy.
func (r *Registry) AllowOverriding() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowOverriding
}

// SetParentLookup installs the lookup used when a definition names a parent
// with its own name, which refers to the parent factory's definition.
func (r *Registry) SetParentLookup(fn func(name string) (*MergedDefinition, error)) {
	r.mu.Lock()
	r.parentLookup = fn
	r.mu.Unlock()
}

// OnReset registers a hook called with each bean name whose definition was
// replaced or removed, including children that inherit from it.
func (r *Registry) OnReset(fn func(name string)) {
	r.mu.Lock()
	r.resetHooks = append(r.resetHooks, fn)
	r.mu.Unlock()
}

// Register stores a definition under name.
// Returns AlreadyRegisteredError if the name is taken and overriding is off.
func (r *Registry) Register(name string, def *BeanDefinition) error {
	if name == "" {
		return &InvalidDefinitionError{Reason: "bean name cannot be empty"}
	}
	if def == nil {
		return &InvalidDefinitionError{Name: name, Reason: "definition cannot be nil"}
	}
	if err := def.Validate(); err != nil {
		return &InvalidDefinitionError{Name: name, Reason: "validation failed", Cause: err}
	}

	r.mu.Lock()
	_, exists := r.definitions[name]
	if exists && !r.allowOverriding {
		r.mu.Unlock()
		return &AlreadyRegisteredError{Name: name}
	}
	if target, isAlias := r.aliases[name]; isAlias {
		if !r.allowOverriding {
			r.mu.Unlock()
			return &AlreadyRegisteredError{Name: name, AliasOf: target}
		}
		delete(r.aliases, name)
	}
	r.definitions[name] = def
	if !exists {
		r.names = append(r.names, name)
	}
	r.mu.Unlock()

	if exists {
		r.reset(name, map[string]bool{})
	}
	return nil
}

// Remove deletes the definition registered under name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	if _, exists := r.definitions[name]; !exists {
		r.mu.Unlock()
		return &DefinitionNotFoundError{Name: name}
	}
	delete(r.definitions, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.reset(name, map[string]bool{})
	return nil
}

// reset drops merged state for name and for every definition inheriting from
// it, then runs the reset hooks.
func (r *Registry) reset(name string, done map[string]bool) {
	if done[name] {
		return
	}
	done[name] = true
	r.ClearMerged(name)

	r.mu.RLock()
	hooks := append([]func(string){}, r.resetHooks...)
	var children []string
	for _, n := range r.names {
		if n != name && r.canonicalLocked(r.definitions[n].Parent) == name {
			children = append(children, n)
		}
	}
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(name)
	}
	for _, child := range children {
		r.reset(child, done)
	}
}

// Get retrieves the raw definition registered under name (no alias lookup).
func (r *Registry) Get(name string) (*BeanDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.definitions[name]
	if !exists {
		return nil, &DefinitionNotFoundError{Name: name}
	}
	return def, nil
}

// Contains reports whether a definition is registered under name.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.definitions[name]
	return exists
}

// Names returns all definition names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}

// RegisterAlias makes alias another name for name. Registering a name as
// its own alias removes any alias by that name.
func (r *Registry) RegisterAlias(name, alias string) error {
	if name == "" || alias == "" {
		return &InvalidDefinitionError{Name: name, Reason: "name and alias must not be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if alias == name {
		delete(r.aliases, alias)
		return nil
	}
	if registered, exists := r.aliases[alias]; exists {
		if registered == name {
			return nil
		}
		if !r.allowOverriding {
			return &AlreadyRegisteredError{Name: alias, AliasOf: registered}
		}
	}
	if r.resolvesToLocked(name, alias) {
		return &AliasCycleError{Name: name, Alias: alias}
	}
	r.aliases[alias] = name
	return nil
}

// RemoveAlias deletes an alias.
func (r *Registry) RemoveAlias(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.aliases[alias]; !exists {
		return fmt.Errorf("no alias %q registered", alias)
	}
	delete(r.aliases, alias)
	return nil
}

// IsAlias reports whether name is a registered alias.
func (r *Registry) IsAlias(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.aliases[name]
	return ok
}

// Canonical follows the alias chain starting at name to the bean name.
func (r *Registry) Canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalLocked(name)
}

func (r *Registry) canonicalLocked(name string) string {
	current := name
	for i := 0; i <= len(r.aliases); i++ {
		next, ok := r.aliases[current]
		if !ok {
			return current
		}
		current = next
	}
	return current
}

// resolvesToLocked reports whether following aliases from start reaches target.
func (r *Registry) resolvesToLocked(start, target string) bool {
	current := start
	for i := 0; i <= len(r.aliases); i++ {
		if current == target {
			return true
		}
		next, ok := r.aliases[current]
		if !ok {
			return false
		}
		current = next
	}
	return false
}

// Aliases returns every alias that resolves to name, sorted.
func (r *Registry) Aliases(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	var collect func(target string)
	collect = func(target string) {
		for alias, registered := range r.aliases {
			if registered == target {
				out = append(out, alias)
				collect(alias)
			}
		}
	}
	collect(name)
	sort.Strings(out)
	return out
}

// Merged returns the merged definition for name, computing and caching it on
// first use.
func (r *Registry) Merged(name string) (*MergedDefinition, error) {
	return r.mergedVisiting(name, nil)
}

func (r *Registry) mergedVisiting(name string, chain []string) (*MergedDefinition, error) {
	r.mergedMu.RLock()
	mbd, ok := r.merged[name]
	r.mergedMu.RUnlock()
	if ok {
		return mbd, nil
	}

	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return r.merge(name, def, nil, append(chain, name))
}

// MergedWithin merges def, which is nested inside containing. The result
// inherits a non-singleton scope from its container and is not cached.
func (r *Registry) MergedWithin(name string, def *BeanDefinition, containing *MergedDefinition) (*MergedDefinition, error) {
	return r.merge(name, def, containing, []string{name})
}

func (r *Registry) merge(name string, def *BeanDefinition, containing *MergedDefinition, chain []string) (*MergedDefinition, error) {
	var flat *BeanDefinition
	if def.Parent == "" {
		flat = def.Clone()
	} else {
		parentName := r.Canonical(def.Parent)
		for _, seen := range chain[:len(chain)-1] {
			if seen == parentName {
				return nil, &ParentCycleError{Chain: append(append([]string{}, chain...), parentName)}
			}
		}

		var parent *MergedDefinition
		var err error
		if parentName != name {
			parent, err = r.mergedVisiting(parentName, chain)
		} else {
			r.mu.RLock()
			lookup := r.parentLookup
			r.mu.RUnlock()
			if lookup == nil {
				err = fmt.Errorf("parent name %q is equal to bean name and no parent factory is available", parentName)
			} else {
				parent, err = lookup(parentName)
			}
		}
		if err != nil {
			var cycle *ParentCycleError
			if errors.As(err, &cycle) {
				return nil, err
			}
			return nil, &InvalidDefinitionError{Name: name, Reason: fmt.Sprintf("could not resolve parent definition %q", def.Parent), Cause: err}
		}

		flat = parent.BeanDefinition.Clone()
		flat.overrideFrom(def)
	}

	flat.Parent = ""
	if flat.Scope == ScopeDefault {
		flat.Scope = ScopeSingleton
	}
	if containing != nil && !containing.IsSingleton() && flat.IsSingleton() {
		flat.Scope = containing.Scope
	}
	mbd := newMerged(flat)

	if containing == nil {
		r.mergedMu.Lock()
		if existing, ok := r.merged[name]; ok {
			mbd = existing
		} else {
			r.merged[name] = mbd
		}
		r.mergedMu.Unlock()
	}
	return mbd, nil
}

// ClearMerged drops the cached merged definition for name so the next lookup
// re-merges from the raw definitions.
func (r *Registry) ClearMerged(name string) {
	r.mergedMu.Lock()
	delete(r.merged, name)
	r.mergedMu.Unlock()
}

// ClearAllMerged drops every cached merged definition.
func (r *Registry) ClearAllMerged() {
	r.mergedMu.Lock()
	r.merged = make(map[string]*MergedDefinition)
	r.mergedMu.Unlock()
}

// AlreadyRegisteredError is returned when a name is already taken and
// overriding is not allowed.
type AlreadyRegisteredError struct {
	Name    string
	AliasOf string
}

func (e *AlreadyRegisteredError) Error() string {
	if e.AliasOf != "" {
		return fmt.Sprintf("cannot register %q: it is already an alias for bean %q", e.Name, e.AliasOf)
	}
	return fmt.Sprintf("bean definition %q is already registered and overriding is not allowed", e.Name)
}

// DefinitionNotFoundError is returned when no definition exists for a name.
type DefinitionNotFoundError struct {
	Name string
}

func (e *DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("no bean named %q is defined", e.Name)
}

// AliasCycleError is returned when registering an alias would close a loop.
type AliasCycleError struct {
	Name  string
	Alias string
}

func (e *AliasCycleError) Error() string {
	return fmt.Sprintf("cannot register alias %q for name %q: circular reference %q -> %q", e.Alias, e.Name, e.Name, e.Alias)
}

// ParentCycleError is returned when a chain of parent definitions loops.
type ParentCycleError struct {
	Chain []string
}

func (e *ParentCycleError) Error() string {
	return fmt.Sprintf("circular parent definitions: %s", strings.Join(e.Chain, " -> "))
}

// InvalidDefinitionError is returned for a definition that cannot be stored
// or merged.
type InvalidDefinitionError struct {
	Name   string
	Reason string
	Cause  error
}

func (e *InvalidDefinitionError) Error() string {
	msg := "invalid bean definition"
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *InvalidDefinitionError) Unwrap() error {
	return e.Cause
}
