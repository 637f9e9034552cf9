package nasc

import (
	"fmt"
	"reflect"
	"sync"
	"time"
	"unicode"
)

// PropertyAccessor is implemented by beans that publish their properties by
// name instead of through exported struct fields. Beans that do not implement
// it must be pointers to structs; their exported fields become properties.
type PropertyAccessor interface {
	PropertyNames() []string
	PropertyType(name string) (reflect.Type, bool)
	GetProperty(name string) (any, error)
	SetProperty(name string, value any) error
}

// propertyInfo describes one writable struct field.
type propertyInfo struct {
	name   string
	field  string
	index  []int
	typ    reflect.Type
	inject string
	tagged bool
}

// structProperties is the cached property table of a struct type.
type structProperties struct {
	list   []*propertyInfo
	byName map[string]*propertyInfo
}

// reflectionCache caches property tables per struct type.
type reflectionCache struct {
	mu    sync.RWMutex
	types map[reflect.Type]*structProperties
}

func newReflectionCache() *reflectionCache {
	return &reflectionCache{types: make(map[reflect.Type]*structProperties)}
}

// properties returns the property table of the struct type typ.
func (rc *reflectionCache) properties(typ reflect.Type) *structProperties {
	rc.mu.RLock()
	props, ok := rc.types[typ]
	rc.mu.RUnlock()
	if ok {
		return props
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if props, ok := rc.types[typ]; ok {
		return props
	}

	props = &structProperties{byName: make(map[string]*propertyInfo)}
	for _, f := range reflect.VisibleFields(typ) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		name := propertyName(f.Name)
		if tag, ok := f.Tag.Lookup("bean"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		inject, tagged := f.Tag.Lookup("inject")
		info := &propertyInfo{
			name:   name,
			field:  f.Name,
			index:  f.Index,
			typ:    f.Type,
			inject: inject,
			tagged: tagged,
		}
		props.list = append(props.list, info)
		props.byName[name] = info
	}
	// Exact Go field names resolve too, unless a property already uses them.
	for _, info := range props.list {
		if _, taken := props.byName[info.field]; !taken {
			props.byName[info.field] = info
		}
	}

	rc.types[typ] = props
	return props
}

// propertyName lower-cases the leading capitals of a field name:
// Name -> name, URL -> url, HTTPClient -> httpClient.
func propertyName(field string) string {
	runes := []rune(field)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return field
	case n > 1 && n < len(runes):
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// structAccessor adapts a pointer to struct to PropertyAccessor.
type structAccessor struct {
	value reflect.Value
	props *structProperties
}

func (a *structAccessor) PropertyNames() []string {
	names := make([]string, len(a.props.list))
	for i, p := range a.props.list {
		names[i] = p.name
	}
	return names
}

func (a *structAccessor) PropertyType(name string) (reflect.Type, bool) {
	p, ok := a.props.byName[name]
	if !ok {
		return nil, false
	}
	return p.typ, true
}

func (a *structAccessor) field(name string) (reflect.Value, error) {
	p, ok := a.props.byName[name]
	if !ok {
		return reflect.Value{}, fmt.Errorf("bean property %q is not writable or has no field", name)
	}
	f, err := a.value.FieldByIndexErr(p.index)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("bean property %q: %w", name, err)
	}
	return f, nil
}

func (a *structAccessor) GetProperty(name string) (any, error) {
	f, err := a.field(name)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

func (a *structAccessor) SetProperty(name string, value any) error {
	f, err := a.field(name)
	if err != nil {
		return err
	}
	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(f.Type()) {
		return &TypeMismatchError{Value: value, Target: f.Type()}
	}
	f.Set(v)
	return nil
}

// propertyAccessor returns the accessor of bean, or nil if it has none.
func (n *Nasc) propertyAccessor(bean any) PropertyAccessor {
	if pa, ok := bean.(PropertyAccessor); ok {
		return pa
	}
	v := reflect.ValueOf(bean)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	return &structAccessor{value: v.Elem(), props: n.reflection.properties(v.Elem().Type())}
}

// isUnset reports whether the property currently holds its zero value.
func isUnset(pa PropertyAccessor, name string) bool {
	current, err := pa.GetProperty(name)
	if err != nil {
		return false
	}
	if current == nil {
		return true
	}
	return reflect.ValueOf(current).IsZero()
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	anyType      = reflect.TypeOf((*any)(nil)).Elem()
)

// isSimpleType reports whether values of t are literals rather than beans.
func isSimpleType(t reflect.Type) bool {
	if t == timeType || t == durationType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.Func, reflect.Chan:
		return true
	case reflect.Slice, reflect.Array:
		return isSimpleType(t.Elem())
	case reflect.Map:
		return isSimpleType(t.Key()) && isSimpleType(t.Elem())
	}
	return false
}
