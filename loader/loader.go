// Package loader reads bean definitions from TOML files and registers them
// with a bean factory.
//
// A file holds one table per bean under [beans] and an optional [aliases]
// table mapping alias to bean name:
//
//	[beans.clock]
//	type = "app.Clock"
//
//	[beans.server]
//	type = "app.Server"
//	depends_on = ["clock"]
//	init_method = "Start"
//	destroy_method = "Stop"
//	[beans.server.properties]
//	addr = ":8080"
//	clock = { ref = "clock" }
//	tags = { list = ["a", "b"] }
//	[[beans.server.args]]
//	index = 0
//	value = "main"
//
//	[aliases]
//	api = "server"
//
// Property and argument values are literals, or tables with one of the keys
// ref (bean reference, parent = true to look in the parent factory), idref
// (bean name, checked to exist), list, map (both with optional merge = true)
// or bean (an inner bean definition, with optional name).
package loader

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// Registrar receives the definitions read by a Loader. *nasc.Nasc
// implements it.
type Registrar interface {
	RegisterBeanDefinition(name string, def *registry.BeanDefinition) error
	RegisterAlias(name, alias string) error
}

// Error reports a definition that could not be read or registered.
type Error struct {
	Source string
	Bean   string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	if e.Bean != "" {
		b.WriteString(fmt.Sprintf("bean %q: ", e.Bean))
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

type fileConfig struct {
	Beans   map[string]fileBean `toml:"beans"`
	Aliases map[string]string   `toml:"aliases"`
}

type fileBean struct {
	Type              string                    `toml:"type"`
	Factory           string                    `toml:"factory"`
	Parent            string                    `toml:"parent"`
	Scope             string                    `toml:"scope"`
	Lazy              *bool                     `toml:"lazy"`
	Abstract          bool                      `toml:"abstract"`
	DependsOn         []string                  `toml:"depends_on"`
	InitMethod        string                    `toml:"init_method"`
	DestroyMethod     string                    `toml:"destroy_method"`
	Autowire          string                    `toml:"autowire"`
	AutowireCandidate *bool                     `toml:"autowire_candidate"`
	Primary           bool                      `toml:"primary"`
	Priority          *int                      `toml:"priority"`
	Qualifiers        []string                  `toml:"qualifiers"`
	DependencyCheck   string                    `toml:"dependency_check"`
	FactoryBean       string                    `toml:"factory_bean"`
	FactoryMethod     string                    `toml:"factory_method"`
	Description       string                    `toml:"description"`
	Aliases           []string                  `toml:"aliases"`
	Properties        map[string]toml.Primitive `toml:"properties"`
	Args              []fileArg                 `toml:"args"`
}

type fileArg struct {
	Index *int            `toml:"index"`
	Name  string          `toml:"name"`
	Type  string          `toml:"type"`
	Value *toml.Primitive `toml:"value"`
}

type fileValue struct {
	Ref    string                    `toml:"ref"`
	Parent bool                      `toml:"parent"`
	IDRef  string                    `toml:"idref"`
	List   []toml.Primitive          `toml:"list"`
	Map    map[string]toml.Primitive `toml:"map"`
	Merge  bool                      `toml:"merge"`
	Bean   *fileBean                 `toml:"bean"`
	Name   string                    `toml:"name"`
}

var valueMarkers = []string{"ref", "idref", "list", "map", "bean"}

// Loader registers the definitions of TOML files with a Registrar.
type Loader struct {
	target Registrar
	types  *TypeRegistry
	log    zerolog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used by the loader.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// New creates a Loader registering into target and resolving type names
// through types.
func New(target Registrar, types *TypeRegistry, opts ...Option) *Loader {
	if types == nil {
		types = NewTypeRegistry()
	}
	l := &Loader{target: target, types: types, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile loads the definitions of the TOML file at path and returns how
// many were registered.
func (l *Loader) LoadFile(path string) (int, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return 0, &Error{Source: path, Err: err}
	}
	return l.register(path, meta, raw)
}

// Load loads definitions from r. It returns how many were registered.
func (l *Loader) Load(r io.Reader) (int, error) {
	var raw fileConfig
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return 0, &Error{Err: err}
	}
	return l.register("", meta, raw)
}

func (l *Loader) register(source string, meta toml.MetaData, raw fileConfig) (int, error) {
	count := 0
	for _, name := range orderedKeys(meta, toml.Key{"beans"}, raw.Beans) {
		b := raw.Beans[name]
		def, err := l.definition(meta, toml.Key{"beans", name}, b)
		if err != nil {
			return count, &Error{Source: source, Bean: name, Err: err}
		}
		if err := l.target.RegisterBeanDefinition(name, def); err != nil {
			return count, &Error{Source: source, Bean: name, Err: err}
		}
		count++
		for _, alias := range b.Aliases {
			if err := l.target.RegisterAlias(name, alias); err != nil {
				return count, &Error{Source: source, Bean: name, Err: err}
			}
		}
	}

	for _, alias := range orderedKeys(meta, toml.Key{"aliases"}, raw.Aliases) {
		name := raw.Aliases[alias]
		if err := l.target.RegisterAlias(name, alias); err != nil {
			return count, &Error{Source: source, Bean: name, Err: err}
		}
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		l.log.Debug().Str("source", source).Strs("keys", keys).Msg("ignored unknown keys")
	}
	l.log.Info().Str("source", source).Int("definitions", count).Msg("loaded bean definitions")
	return count, nil
}

func (l *Loader) definition(meta toml.MetaData, path toml.Key, b fileBean) (*registry.BeanDefinition, error) {
	def := &registry.BeanDefinition{
		Scope:             b.Scope,
		Lazy:              b.Lazy,
		Abstract:          b.Abstract,
		Parent:            b.Parent,
		DependsOn:         b.DependsOn,
		InitMethod:        b.InitMethod,
		DestroyMethod:     b.DestroyMethod,
		AutowireCandidate: b.AutowireCandidate,
		Primary:           b.Primary,
		Priority:          b.Priority,
		Qualifiers:        b.Qualifiers,
		FactoryBean:       b.FactoryBean,
		FactoryMethod:     b.FactoryMethod,
		Description:       b.Description,
	}

	if b.Type != "" {
		typ, ctors, ok := l.types.Lookup(b.Type)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", b.Type)
		}
		def.Type = typ
		def.Constructors = ctors
	}
	if b.Factory != "" {
		fns, ok := l.types.Factory(b.Factory)
		if !ok {
			return nil, fmt.Errorf("unknown factory %q", b.Factory)
		}
		def.FactoryFuncs = fns
	}

	switch mode := registry.AutowireMode(b.Autowire); mode {
	case registry.AutowireDefault, registry.AutowireNo, registry.AutowireByName,
		registry.AutowireByType, registry.AutowireConstructor:
		def.Autowire = mode
	default:
		return nil, fmt.Errorf("unknown autowire mode %q", b.Autowire)
	}

	switch strings.ToLower(b.DependencyCheck) {
	case "", "none":
		def.DependencyCheck = registry.DependencyCheckNone
	case "objects":
		def.DependencyCheck = registry.DependencyCheckObjects
	case "simple":
		def.DependencyCheck = registry.DependencyCheckSimple
	case "all":
		def.DependencyCheck = registry.DependencyCheckAll
	default:
		return nil, fmt.Errorf("unknown dependency check %q", b.DependencyCheck)
	}

	if len(b.Properties) > 0 {
		def.Properties = registry.NewProperties()
		propPath := append(append(toml.Key{}, path...), "properties")
		for _, name := range orderedKeys(meta, propPath, b.Properties) {
			v, err := l.value(meta, append(append(toml.Key{}, propPath...), name), b.Properties[name])
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			def.Properties.Set(name, v)
		}
	}

	if len(b.Args) > 0 {
		def.ConstructorArgs = registry.NewConstructorArgs()
		for i, a := range b.Args {
			if a.Value == nil {
				return nil, fmt.Errorf("argument %d: missing value", i)
			}
			v, err := l.value(meta, nil, *a.Value)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			arg := registry.ArgValue{Value: v, Name: a.Name}
			if a.Type != "" {
				typ, _, ok := l.types.Lookup(a.Type)
				if !ok {
					return nil, fmt.Errorf("argument %d: unknown type %q", i, a.Type)
				}
				arg.Type = typ
			}
			if a.Index != nil {
				if *a.Index < 0 {
					return nil, fmt.Errorf("argument %d: negative index %d", i, *a.Index)
				}
				def.ConstructorArgs.IndexValue(*a.Index, arg)
				continue
			}
			def.ConstructorArgs.GenericValue(arg)
		}
	}
	return def, nil
}

// value converts one decoded TOML value into the definition value model.
// path locates the value in the file and may be nil inside arrays.
func (l *Loader) value(meta toml.MetaData, path toml.Key, prim toml.Primitive) (any, error) {
	var raw any
	if err := meta.PrimitiveDecode(prim, &raw); err != nil {
		return nil, err
	}

	switch raw := raw.(type) {
	case map[string]any:
		if !hasMarker(raw) {
			var entries map[string]toml.Primitive
			if err := meta.PrimitiveDecode(prim, &entries); err != nil {
				return nil, err
			}
			return l.literalMap(meta, path, entries)
		}
		var fv fileValue
		if err := meta.PrimitiveDecode(prim, &fv); err != nil {
			return nil, err
		}
		return l.managedValue(meta, path, fv)

	case []any:
		var items []toml.Primitive
		if err := meta.PrimitiveDecode(prim, &items); err != nil {
			return nil, err
		}
		return l.items(meta, items)
	}
	return raw, nil
}

func (l *Loader) managedValue(meta toml.MetaData, path toml.Key, fv fileValue) (any, error) {
	switch {
	case fv.Ref != "":
		return registry.Ref{Name: fv.Ref, ToParent: fv.Parent}, nil
	case fv.IDRef != "":
		return registry.NameRef(fv.IDRef), nil
	case fv.List != nil:
		items, err := l.items(meta, fv.List)
		if err != nil {
			return nil, err
		}
		return registry.List{Items: items, Merge: fv.Merge}, nil
	case fv.Map != nil:
		entries, err := l.literalMap(meta, child(path, "map"), fv.Map)
		if err != nil {
			return nil, err
		}
		return registry.Map{Entries: entries, Merge: fv.Merge}, nil
	case fv.Bean != nil:
		def, err := l.definition(meta, child(path, "bean"), *fv.Bean)
		if err != nil {
			return nil, fmt.Errorf("inner bean: %w", err)
		}
		return registry.Inner{Name: fv.Name, Definition: def}, nil
	}
	return nil, fmt.Errorf("empty value table: expected one of %s", strings.Join(valueMarkers, ", "))
}

func (l *Loader) items(meta toml.MetaData, prims []toml.Primitive) ([]any, error) {
	items := make([]any, 0, len(prims))
	for i, p := range prims {
		v, err := l.value(meta, nil, p)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, v)
	}
	return items, nil
}

func (l *Loader) literalMap(meta toml.MetaData, path toml.Key, prims map[string]toml.Primitive) (map[string]any, error) {
	entries := make(map[string]any, len(prims))
	for k, p := range prims {
		v, err := l.value(meta, child(path, k), p)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", k, err)
		}
		entries[k] = v
	}
	return entries, nil
}

func hasMarker(m map[string]any) bool {
	for _, k := range valueMarkers {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func child(path toml.Key, name string) toml.Key {
	if path == nil {
		return nil
	}
	return append(append(toml.Key{}, path...), name)
}

// orderedKeys returns the keys of m in file order. Keys the metadata cannot
// place follow in lexical order.
func orderedKeys[T any](meta toml.MetaData, prefix toml.Key, m map[string]T) []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	if prefix != nil {
		for _, key := range meta.Keys() {
			if len(key) != len(prefix)+1 || !hasPrefix(key, prefix) {
				continue
			}
			name := key[len(prefix)]
			if _, ok := m[name]; ok && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	var rest []string
	for name := range m {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func hasPrefix(key, prefix toml.Key) bool {
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
