package registry

import (
	"reflect"
	"sort"
)

// Ref is a property or argument value that points at another bean by name.
// ToParent forces the lookup into the parent factory.
type Ref struct {
	Name     string
	ToParent bool
}

// NameRef resolves to the referenced bean's name itself, after checking that a
// bean with that name exists.
type NameRef string

// Inner is an anonymous bean definition nested inside a property or argument.
// Name is optional; a unique name is generated when it is empty.
type Inner struct {
	Name       string
	Definition *BeanDefinition
}

// List is a managed list. Items may hold literals, references, inner beans or
// nested collections. With Merge set, a child definition's list is appended to
// the list inherited from its parent instead of replacing it.
type List struct {
	Items []any
	Merge bool
}

// Map is a managed string-keyed map. With Merge set, a child's entries are laid
// over the entries inherited from its parent.
type Map struct {
	Entries map[string]any
	Merge   bool
}

// mergeable is implemented by collection values that can combine with a parent
// value of the same kind.
type mergeable interface {
	mergeWith(parent any) any
}

func (l List) mergeWith(parent any) any {
	p, ok := parent.(List)
	if !ok || !l.Merge {
		return l
	}
	items := make([]any, 0, len(p.Items)+len(l.Items))
	items = append(items, p.Items...)
	items = append(items, l.Items...)
	return List{Items: items, Merge: l.Merge}
}

func (m Map) mergeWith(parent any) any {
	p, ok := parent.(Map)
	if !ok || !m.Merge {
		return m
	}
	entries := make(map[string]any, len(p.Entries)+len(m.Entries))
	for k, v := range p.Entries {
		entries[k] = v
	}
	for k, v := range m.Entries {
		entries[k] = v
	}
	return Map{Entries: entries, Merge: m.Merge}
}

// SortedKeys returns the map keys in lexical order.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PropertyValue is one named property assignment.
type PropertyValue struct {
	Name  string
	Value any
}

// PropertyValues is an ordered set of property assignments keyed by name.
// The zero value and a nil pointer are both empty and ready for reads.
type PropertyValues struct {
	values []PropertyValue
}

// NewProperties returns an empty property set.
func NewProperties() *PropertyValues {
	return &PropertyValues{}
}

// Set assigns a property, replacing any earlier assignment with the same name.
// Mergeable collections combine with the value they replace.
func (p *PropertyValues) Set(name string, value any) *PropertyValues {
	for i := range p.values {
		if p.values[i].Name == name {
			if m, ok := value.(mergeable); ok {
				value = m.mergeWith(p.values[i].Value)
			}
			p.values[i].Value = value
			return p
		}
	}
	p.values = append(p.values, PropertyValue{Name: name, Value: value})
	return p
}

// Get returns the value assigned to name.
func (p *PropertyValues) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	for _, pv := range p.values {
		if pv.Name == name {
			return pv.Value, true
		}
	}
	return nil, false
}

// Contains reports whether name has an assignment.
func (p *PropertyValues) Contains(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Remove drops the assignment for name.
func (p *PropertyValues) Remove(name string) {
	if p == nil {
		return
	}
	for i := range p.values {
		if p.values[i].Name == name {
			p.values = append(p.values[:i], p.values[i+1:]...)
			return
		}
	}
}

// Len returns the number of assignments.
func (p *PropertyValues) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// All returns a copy of the assignments in insertion order.
func (p *PropertyValues) All() []PropertyValue {
	if p == nil {
		return nil
	}
	out := make([]PropertyValue, len(p.values))
	copy(out, p.values)
	return out
}

// Copy returns an independent property set with the same assignments.
func (p *PropertyValues) Copy() *PropertyValues {
	return &PropertyValues{values: p.All()}
}

func (p *PropertyValues) addAll(other *PropertyValues) {
	for _, pv := range other.All() {
		p.Set(pv.Name, pv.Value)
	}
}

// ArgValue is a constructor or factory-method argument. Type and Name are
// optional matching hints used for generic (non-indexed) arguments.
type ArgValue struct {
	Value any
	Type  reflect.Type
	Name  string
}

// ConstructorArgs holds indexed and generic constructor arguments.
type ConstructorArgs struct {
	indexed map[int]ArgValue
	generic []ArgValue
}

// NewConstructorArgs returns an empty argument set.
func NewConstructorArgs() *ConstructorArgs {
	return &ConstructorArgs{indexed: make(map[int]ArgValue)}
}

// Index sets the argument at position i.
func (c *ConstructorArgs) Index(i int, value any) *ConstructorArgs {
	return c.IndexValue(i, ArgValue{Value: value})
}

// IndexValue sets the argument at position i with matching hints.
func (c *ConstructorArgs) IndexValue(i int, arg ArgValue) *ConstructorArgs {
	if c.indexed == nil {
		c.indexed = make(map[int]ArgValue)
	}
	if prev, ok := c.indexed[i]; ok {
		if m, ok := arg.Value.(mergeable); ok {
			arg.Value = m.mergeWith(prev.Value)
		}
	}
	c.indexed[i] = arg
	return c
}

// Generic appends a positionless argument matched by type.
func (c *ConstructorArgs) Generic(value any) *ConstructorArgs {
	return c.GenericValue(ArgValue{Value: value})
}

// Named appends a positionless argument matched by parameter name.
func (c *ConstructorArgs) Named(name string, value any) *ConstructorArgs {
	return c.GenericValue(ArgValue{Value: value, Name: name})
}

// GenericValue appends a positionless argument with matching hints.
func (c *ConstructorArgs) GenericValue(arg ArgValue) *ConstructorArgs {
	c.generic = append(c.generic, arg)
	return c
}

// IndexedPositions returns the indexed positions in ascending order.
func (c *ConstructorArgs) IndexedPositions() []int {
	if c == nil {
		return nil
	}
	out := make([]int, 0, len(c.indexed))
	for i := range c.indexed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// IndexedAt returns the raw indexed argument at position i.
func (c *ConstructorArgs) IndexedAt(i int) (ArgValue, bool) {
	if c == nil {
		return ArgValue{}, false
	}
	arg, ok := c.indexed[i]
	return arg, ok
}

// GenericValues returns a copy of the generic arguments.
func (c *ConstructorArgs) GenericValues() []ArgValue {
	if c == nil {
		return nil
	}
	out := make([]ArgValue, len(c.generic))
	copy(out, c.generic)
	return out
}

// Len returns the total number of arguments.
func (c *ConstructorArgs) Len() int {
	if c == nil {
		return 0
	}
	return len(c.indexed) + len(c.generic)
}

// IsEmpty reports whether no arguments are set.
func (c *ConstructorArgs) IsEmpty() bool {
	return c.Len() == 0
}

// Copy returns an independent copy.
func (c *ConstructorArgs) Copy() *ConstructorArgs {
	out := NewConstructorArgs()
	if c == nil {
		return out
	}
	for i, arg := range c.indexed {
		out.indexed[i] = arg
	}
	out.generic = c.GenericValues()
	return out
}

func (c *ConstructorArgs) addAll(other *ConstructorArgs) {
	if other == nil {
		return
	}
	for _, i := range other.IndexedPositions() {
		c.IndexValue(i, other.indexed[i])
	}
	for _, arg := range other.generic {
		if !c.containsGeneric(arg) {
			c.generic = append(c.generic, arg)
		}
	}
}

func (c *ConstructorArgs) containsGeneric(arg ArgValue) bool {
	for _, g := range c.generic {
		if g.Name == arg.Name && g.Type == arg.Type && sameValue(g.Value, arg.Value) {
			return true
		}
	}
	return false
}

// Lookup finds the argument for parameter index with the given type and
// name: an indexed argument first, then an unused generic one. used tracks
// generic arguments already consumed and is updated on a generic match.
func (c *ConstructorArgs) Lookup(index int, typ reflect.Type, name string, used map[int]bool) (ArgValue, bool) {
	if c == nil {
		return ArgValue{}, false
	}
	if arg, ok := c.indexed[index]; ok {
		if (arg.Type == nil || arg.Type == typ) && (arg.Name == "" || name == "" || arg.Name == name) {
			return arg, true
		}
	}
	return c.LookupGeneric(typ, name, used)
}

// LookupGeneric finds an unused generic argument matching the type and name.
// A nil type and empty name match the first unused argument carrying no
// hints of its own.
func (c *ConstructorArgs) LookupGeneric(typ reflect.Type, name string, used map[int]bool) (ArgValue, bool) {
	if c == nil {
		return ArgValue{}, false
	}
	for i, arg := range c.generic {
		if used[i] {
			continue
		}
		if arg.Name != "" && (name == "" || arg.Name != name) {
			continue
		}
		if arg.Type != nil && (typ == nil || arg.Type != typ) {
			continue
		}
		if typ != nil && arg.Type == nil && arg.Name == "" && !assignableValue(arg.Value, typ) {
			continue
		}
		if used != nil {
			used[i] = true
		}
		return arg, true
	}
	return ArgValue{}, false
}

func assignableValue(value any, typ reflect.Type) bool {
	if value == nil {
		switch typ.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(value).AssignableTo(typ)
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
