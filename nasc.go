package nasc

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// BeanFactory is the lookup surface handed to beans and post-processors.
type BeanFactory interface {
	GetBean(name string) (any, error)
	GetBeanWithType(name string, typ reflect.Type) (any, error)
	GetBeanWithArgs(name string, args ...any) (any, error)
	GetBeanByType(typ reflect.Type) (any, error)
	ContainsBean(name string) bool
	IsSingleton(name string) (bool, error)
	IsPrototype(name string) (bool, error)
	GetType(name string) (reflect.Type, error)
	GetAliases(name string) []string
	ResolveDependency(desc DependencyDescriptor) (any, error)
}

// Nasc is the bean factory. All methods are safe for concurrent use, except
// DestroySingletons which requires exclusive access.
type Nasc struct {
	defs       *registry.Registry
	singletons *singletonRegistry
	processors pipeline
	reflection *reflectionCache
	strategy   InstantiationStrategy
	parent     *Nasc
	log        zerolog.Logger
	level      zerolog.Level

	// creationMu serializes all singleton creation.
	creationMu sync.Mutex

	calloutMu sync.Mutex
	callouts  map[string]int // bean code running, summed over requests
	owner     *creation      // request holding creationMu

	createdMu sync.Mutex
	created   map[string]bool

	scopesMu sync.RWMutex
	scopes   map[string]Scope

	resolvableMu sync.RWMutex
	resolvable   map[reflect.Type]any

	allowCircularReferences bool
	allowRawInjection       bool
	tagInjection            bool

	providersMu sync.Mutex
	providers   []*providerEntry
}

var (
	_ BeanFactory = (*Nasc)(nil)
	_ BeanFactory = (*boundFactory)(nil)
)

// New creates a bean factory configured by DefaultConfig and the options.
//
// Example:
//
//	factory := nasc.New()
//	// or with options:
//	factory := nasc.New(nasc.WithDebug(), nasc.WithTagInjection())
func New(options ...Option) *Nasc {
	n := &Nasc{
		defs:       registry.New(),
		reflection: newReflectionCache(),
		strategy:   OverridingInstantiationStrategy{},
		log:        zerolog.Nop(),
		level:      zerolog.NoLevel,
		created:    make(map[string]bool),
		callouts:   make(map[string]int),
		scopes:     make(map[string]Scope),
		resolvable: make(map[reflect.Type]any),
	}
	n.applyConfig(DefaultConfig())

	for _, opt := range options {
		if err := opt(n); err != nil {
			panic(fmt.Sprintf("failed to apply option: %v", err))
		}
	}

	if n.level != zerolog.NoLevel {
		n.log = n.log.Level(n.level)
	}
	n.singletons = newSingletonRegistry(n.log)
	n.defs.OnReset(n.resetBeanDefinition)
	if n.parent != nil {
		n.defs.SetParentLookup(n.parent.MergedBeanDefinition)
	}
	n.resolvable[reflect.TypeOf((*BeanFactory)(nil)).Elem()] = n
	n.resolvable[reflect.TypeOf(n)] = n
	return n
}

// Parent returns the parent factory, or nil.
func (n *Nasc) Parent() *Nasc {
	return n.parent
}

// RegisterBeanDefinition registers def under name.
// Returns AlreadyRegisteredError if the name is taken and overriding is not
// allowed. Overriding a definition destroys the singleton created from it.
func (n *Nasc) RegisterBeanDefinition(name string, def *registry.BeanDefinition) error {
	if err := n.defs.Register(name, def); err != nil {
		return err
	}
	n.log.Trace().Str("bean", name).Msg("registered bean definition")
	return nil
}

// RemoveBeanDefinition removes the definition registered under name.
func (n *Nasc) RemoveBeanDefinition(name string) error {
	return n.defs.Remove(name)
}

// BeanDefinition returns the raw definition registered under name.
func (n *Nasc) BeanDefinition(name string) (*registry.BeanDefinition, error) {
	return n.defs.Get(n.transformedBeanName(name))
}

// MergedBeanDefinition returns the flattened definition of name, falling
// back to the parent factory when name is not defined locally.
func (n *Nasc) MergedBeanDefinition(name string) (*registry.MergedDefinition, error) {
	beanName := n.transformedBeanName(name)
	if !n.defs.Contains(beanName) && n.parent != nil {
		return n.parent.MergedBeanDefinition(beanName)
	}
	return n.defs.Merged(beanName)
}

// BeanDefinitionNames returns the registered definition names in
// registration order.
func (n *Nasc) BeanDefinitionNames() []string {
	return n.defs.Names()
}

// BeanDefinitionCount returns the number of registered definitions.
func (n *Nasc) BeanDefinitionCount() int {
	return n.defs.Count()
}

// ContainsBeanDefinition reports whether name has a local definition.
func (n *Nasc) ContainsBeanDefinition(name string) bool {
	return n.defs.Contains(n.transformedBeanName(name))
}

// RegisterAlias registers alias as another name for name.
func (n *Nasc) RegisterAlias(name, alias string) error {
	return n.defs.RegisterAlias(name, alias)
}

// RegisterSingleton registers an existing object as a singleton bean.
// The object is not post-processed and gets no destruction callbacks.
func (n *Nasc) RegisterSingleton(name string, obj any) error {
	if name == "" {
		return &InvalidDefinitionError{Reason: "bean name cannot be empty"}
	}
	return n.singletons.register(name, obj)
}

// SingletonNames returns the names of all finished singletons.
func (n *Nasc) SingletonNames() []string {
	return n.singletons.names()
}

// SingletonCount returns the number of finished singletons.
func (n *Nasc) SingletonCount() int {
	return n.singletons.count()
}

// ContainsSingleton reports whether a finished singleton exists under name.
func (n *Nasc) ContainsSingleton(name string) bool {
	return n.singletons.contains(n.transformedBeanName(name))
}

// DependentBeans returns the beans that depend on name.
func (n *Nasc) DependentBeans(name string) []string {
	return n.singletons.dependentsOf(n.transformedBeanName(name))
}

// DependenciesForBean returns the beans name depends on.
func (n *Nasc) DependenciesForBean(name string) []string {
	return n.singletons.dependenciesOf(n.transformedBeanName(name))
}

// AddBeanPostProcessor adds p to the pipeline. Post-processors run in
// PriorityOrdered, Ordered, then registration order. Adding p again moves it
// to its sorted position.
func (n *Nasc) AddBeanPostProcessor(p BeanPostProcessor) {
	if p == nil {
		return
	}
	if aware, ok := p.(BeanFactoryAware); ok {
		aware.SetBeanFactory(n.bind(nil, hooksKey))
	}
	n.processors.add(p)
}

// BeanPostProcessorCount returns the number of registered post-processors.
func (n *Nasc) BeanPostProcessorCount() int {
	return n.processors.count()
}

// RegisterScope registers a custom scope strategy under name.
func (n *Nasc) RegisterScope(name string, scope Scope) error {
	if name == registry.ScopeSingleton || name == registry.ScopePrototype || name == "" {
		return fmt.Errorf("cannot replace built-in scope %q", name)
	}
	if scope == nil {
		return fmt.Errorf("scope %q cannot be nil", name)
	}
	n.scopesMu.Lock()
	if _, exists := n.scopes[name]; exists {
		n.log.Debug().Str("scope", name).Msg("replacing scope")
	}
	n.scopes[name] = scope
	n.scopesMu.Unlock()
	return nil
}

// RegisteredScopeNames returns the custom scope names, sorted.
func (n *Nasc) RegisteredScopeNames() []string {
	n.scopesMu.RLock()
	defer n.scopesMu.RUnlock()
	names := make([]string, 0, len(n.scopes))
	for name := range n.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetRegisteredScope returns the scope registered under name.
func (n *Nasc) GetRegisteredScope(name string) (Scope, bool) {
	n.scopesMu.RLock()
	defer n.scopesMu.RUnlock()
	s, ok := n.scopes[name]
	return s, ok
}

// GetBean returns the bean registered under name, creating it if needed.
// "&name" returns a FactoryBean itself instead of its product.
//
// Example:
//
//	bean, err := factory.GetBean("service")
//	if err != nil {
//	    return err
//	}
//	svc := bean.(*Service)
func (n *Nasc) GetBean(name string) (any, error) {
	return n.doGetBean(newCreation(), name, nil, nil)
}

// GetBeanWithType returns the bean under name, converted to typ.
// Returns BeanNotOfRequiredTypeError if it cannot be.
func (n *Nasc) GetBeanWithType(name string, typ reflect.Type) (any, error) {
	return n.doGetBean(newCreation(), name, typ, nil)
}

// GetBeanWithArgs returns the bean under name, created with explicit
// constructor or factory arguments. Only non-singleton beans are created
// again; an existing singleton is returned as is.
func (n *Nasc) GetBeanWithArgs(name string, args ...any) (any, error) {
	return n.doGetBean(newCreation(), name, nil, args)
}

// GetBeanByType returns the single bean matching typ.
func (n *Nasc) GetBeanByType(typ reflect.Type) (any, error) {
	v, _, err := n.resolveDependency(newCreation(), "", DependencyDescriptor{Type: typ, Required: true})
	return v, err
}

// MustGetBean is like GetBean but panics on error.
//
// Example:
//
//	svc := factory.MustGetBean("service").(*Service)
func (n *Nasc) MustGetBean(name string) any {
	bean, err := n.GetBean(name)
	if err != nil {
		panic(fmt.Sprintf("failed to get bean %q: %v", name, err))
	}
	return bean
}

// GetBeanAs returns the bean under name as T.
//
// Example:
//
//	svc, err := nasc.GetBeanAs[*Service](factory, "service")
func GetBeanAs[T any](f BeanFactory, name string) (T, error) {
	var zero T
	bean, err := f.GetBeanWithType(name, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	if bean == nil {
		return zero, nil
	}
	v, ok := bean.(T)
	if !ok {
		return zero, &BeanNotOfRequiredTypeError{Name: name, Required: reflect.TypeOf((*T)(nil)).Elem(), Actual: reflect.TypeOf(bean)}
	}
	return v, nil
}

// GetBeanOfType returns the single bean assignable to T.
//
// Example:
//
//	repo, err := nasc.GetBeanOfType[Repository](factory)
func GetBeanOfType[T any](f BeanFactory) (T, error) {
	var zero T
	bean, err := f.GetBeanByType(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	v, ok := bean.(T)
	if !ok {
		return zero, fmt.Errorf("bean of type %T does not implement %v", bean, reflect.TypeOf((*T)(nil)).Elem())
	}
	return v, nil
}

// ContainsBean reports whether a bean definition or singleton exists under
// name, here or in a parent factory. "&name" requires a FactoryBean.
func (n *Nasc) ContainsBean(name string) bool {
	beanName := n.transformedBeanName(name)
	if n.singletons.contains(beanName) || n.defs.Contains(beanName) {
		if !isFactoryDereference(name) {
			return true
		}
		ok, err := n.isFactoryBean(beanName)
		return err == nil && ok
	}
	if n.parent != nil {
		return n.parent.ContainsBean(originalBeanName(name, beanName))
	}
	return false
}

// isFactoryBean reports whether the bean under beanName is a FactoryBean.
func (n *Nasc) isFactoryBean(beanName string) (bool, error) {
	if obj, ok, _ := n.singletons.get(beanName, false); ok {
		_, isFactory := obj.(FactoryBean)
		return isFactory, nil
	}
	if !n.defs.Contains(beanName) {
		if n.parent != nil {
			return n.parent.isFactoryBean(beanName)
		}
		return false, &DefinitionNotFoundError{Name: beanName}
	}
	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return false, err
	}
	return isFactoryType(n.predictBeanType(beanName, mbd)), nil
}

// IsSingleton reports whether name yields the same object on every lookup.
func (n *Nasc) IsSingleton(name string) (bool, error) {
	return n.isSingleton(newCreation(), name)
}

func (n *Nasc) isSingleton(cc *creation, name string) (bool, error) {
	beanName := n.transformedBeanName(name)
	deref := isFactoryDereference(name)

	if obj, ok, _ := n.singletons.get(beanName, false); ok {
		if fb, isFactory := obj.(FactoryBean); isFactory {
			return deref || fb.IsSingleton(), nil
		}
		return !deref, nil
	}
	if !n.defs.Contains(beanName) {
		if n.parent != nil {
			return n.parent.IsSingleton(originalBeanName(name, beanName))
		}
		return false, &DefinitionNotFoundError{Name: name}
	}

	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return false, err
	}
	if !mbd.IsSingleton() {
		return false, nil
	}
	if !isFactoryType(n.predictBeanType(beanName, mbd)) {
		return !deref, nil
	}
	if deref {
		return true, nil
	}
	factory, err := n.doGetBean(cc, FactoryBeanPrefix+beanName, nil, nil)
	if err != nil {
		return false, err
	}
	return factory.(FactoryBean).IsSingleton(), nil
}

// IsPrototype reports whether name yields an independent object on every
// lookup.
func (n *Nasc) IsPrototype(name string) (bool, error) {
	return n.isPrototype(newCreation(), name)
}

func (n *Nasc) isPrototype(cc *creation, name string) (bool, error) {
	beanName := n.transformedBeanName(name)
	deref := isFactoryDereference(name)

	if !n.defs.Contains(beanName) {
		if n.singletons.contains(beanName) {
			obj, _, _ := n.singletons.get(beanName, false)
			return !deref && isPrototypeFactory(obj), nil
		}
		if n.parent != nil {
			return n.parent.IsPrototype(originalBeanName(name, beanName))
		}
		return false, &DefinitionNotFoundError{Name: name}
	}

	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return false, err
	}
	if !isFactoryType(n.predictBeanType(beanName, mbd)) {
		return !deref && mbd.IsPrototype(), nil
	}
	if deref {
		return mbd.IsPrototype(), nil
	}
	factory, err := n.doGetBean(cc, FactoryBeanPrefix+beanName, nil, nil)
	if err != nil {
		return false, err
	}
	return isPrototypeFactory(factory), nil
}

func isPrototypeFactory(obj any) bool {
	switch fb := obj.(type) {
	case SmartFactoryBean:
		return fb.IsPrototype()
	case FactoryBean:
		return !fb.IsSingleton()
	}
	return false
}

// IsTypeMatch reports whether the bean under name can be injected where typ
// is required.
func (n *Nasc) IsTypeMatch(name string, typ reflect.Type) (bool, error) {
	return n.isTypeMatch(newCreation(), name, typ, true)
}

// GetType returns the type of the object name refers to, creating a
// FactoryBean when needed to learn its product type. It returns nil when the
// type cannot be determined.
func (n *Nasc) GetType(name string) (reflect.Type, error) {
	return n.typeOf(newCreation(), name, true)
}

// GetAliases returns the other names of the bean name refers to. When name
// is an alias the bean name is included; name itself is not.
func (n *Nasc) GetAliases(name string) []string {
	beanName := n.transformedBeanName(name)
	prefix := ""
	if isFactoryDereference(name) {
		prefix = FactoryBeanPrefix
	}
	requested := name[len(prefix):]

	var out []string
	if requested != beanName {
		out = append(out, prefix+beanName)
	}
	for _, alias := range n.defs.Aliases(beanName) {
		if alias != requested {
			out = append(out, prefix+alias)
		}
	}
	if !n.singletons.contains(beanName) && !n.defs.Contains(beanName) && n.parent != nil {
		for _, alias := range n.parent.GetAliases(originalBeanName(name, beanName)) {
			out = appendUnique(out, alias)
		}
	}
	return out
}

// BeanNamesForType returns the names of the beans assignable to typ:
// definitions in registration order, then manually registered singletons.
// FactoryBeans match through their product type.
func (n *Nasc) BeanNamesForType(typ reflect.Type) []string {
	return n.beanNamesForType(newCreation(), typ, true, true)
}

// BeansOfType creates and returns every bean assignable to typ.
func (n *Nasc) BeansOfType(typ reflect.Type) (map[string]any, error) {
	return n.beansOfType(newCreation(), typ)
}

func (n *Nasc) beansOfType(cc *creation, typ reflect.Type) (map[string]any, error) {
	out := make(map[string]any)
	for _, name := range n.beanNamesForType(cc, typ, true, true) {
		bean, err := n.doGetBean(cc, name, nil, nil)
		if err != nil {
			var inCreation *CurrentlyInCreationError
			if errors.As(err, &inCreation) {
				n.log.Debug().Str("bean", name).Msg("skipping bean currently in creation")
				continue
			}
			return nil, err
		}
		out[name] = bean
	}
	return out, nil
}

// resetBeanDefinition discards state derived from the old definition of name.
func (n *Nasc) resetBeanDefinition(name string) {
	n.log.Debug().Str("bean", name).Msg("bean definition reset")
	n.createdMu.Lock()
	delete(n.created, name)
	n.createdMu.Unlock()
	if err := n.singletons.destroy(name); err != nil {
		n.log.Warn().Err(err).Str("bean", name).Msg("destroying singleton of replaced definition failed")
	}
}

// markCreated drops the cached merged definition the first time name is
// created, so metadata edits made before then are picked up.
func (n *Nasc) markCreated(name string) {
	n.createdMu.Lock()
	first := !n.created[name]
	n.created[name] = true
	n.createdMu.Unlock()
	if first {
		n.defs.ClearMerged(name)
	}
}
