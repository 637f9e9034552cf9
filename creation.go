package nasc

import "reflect"

// creation is the state of one top-level bean request. It travels through
// every nested lookup made on behalf of that request, so prototype cycle
// detection and lock ownership stay local to the calling goroutine.
type creation struct {
	prototypes map[string]bool
	products   map[string]bool
	lockDepth  int

	// callouts counts the bean code this request is running, keyed like
	// Nasc.callouts. Guarded by Nasc.calloutMu.
	callouts map[string]int
}

func newCreation() *creation {
	return &creation{
		prototypes: make(map[string]bool),
		products:   make(map[string]bool),
		callouts:   make(map[string]int),
	}
}

// locked reports whether this request holds the singleton creation lock.
func (cc *creation) locked() bool {
	return cc.lockDepth > 0
}

func (cc *creation) prototypeInCreation(name string) bool {
	return cc.prototypes[name]
}

func (cc *creation) beforePrototype(name string) {
	cc.prototypes[name] = true
}

func (cc *creation) afterPrototype(name string) {
	delete(cc.prototypes, name)
}

// lockCreation acquires the factory-wide singleton creation lock unless cc
// already holds it.
func (n *Nasc) lockCreation(cc *creation) {
	if cc.lockDepth == 0 {
		n.creationMu.Lock()
		n.calloutMu.Lock()
		n.owner = cc
		n.calloutMu.Unlock()
	}
	cc.lockDepth++
}

func (n *Nasc) unlockCreation(cc *creation) {
	cc.lockDepth--
	if cc.lockDepth == 0 {
		n.calloutMu.Lock()
		n.owner = nil
		n.calloutMu.Unlock()
		n.creationMu.Unlock()
	}
}

// Callout keys: a bean name while the bean is created, "&name" while the
// FactoryBean name produces its object, hooksKey while any bean runs
// through the post-processors.
const hooksKey = ""

// enter records that cc runs bean code under the given keys until the
// returned func is called.
func (n *Nasc) enter(cc *creation, keys ...string) func() {
	n.calloutMu.Lock()
	for _, k := range keys {
		cc.callouts[k]++
		n.callouts[k]++
	}
	n.calloutMu.Unlock()
	return func() {
		n.calloutMu.Lock()
		for _, k := range keys {
			decrement(cc.callouts, k)
			decrement(n.callouts, k)
		}
		n.calloutMu.Unlock()
	}
}

func decrement(m map[string]int, k string) {
	if m[k] <= 1 {
		delete(m, k)
		return
	}
	m[k]--
}

// boundFactory is the BeanFactory handed to beans, FactoryBeans and
// post-processors. A call made while the code it was handed to runs inside
// the request holding the creation lock joins that request instead of
// waiting for the lock; any other call starts a request of its own.
type boundFactory struct {
	*Nasc
	cc   *creation
	name string
}

// bind returns the handle for code of bean name running in cc. cc is nil
// for the post-processors.
func (n *Nasc) bind(cc *creation, name string) BeanFactory {
	return &boundFactory{Nasc: n, cc: cc, name: name}
}

// creation picks the request a call through f belongs to. The lock owner
// is joined while it runs the creation f was handed out in, or while it is
// the only request running the product or hook code f belongs to.
func (f *boundFactory) creation() *creation {
	n := f.Nasc
	n.calloutMu.Lock()
	defer n.calloutMu.Unlock()
	if o := n.owner; o != nil {
		if f.cc == o && o.callouts[f.name] > 0 {
			return o
		}
		key := hooksKey
		if f.cc != nil {
			key = FactoryBeanPrefix + f.name
		}
		if c := o.callouts[key]; c > 0 && c == n.callouts[key] {
			return o
		}
	}
	return newCreation()
}

func (f *boundFactory) GetBean(name string) (any, error) {
	return f.doGetBean(f.creation(), name, nil, nil)
}

func (f *boundFactory) GetBeanWithType(name string, typ reflect.Type) (any, error) {
	return f.doGetBean(f.creation(), name, typ, nil)
}

func (f *boundFactory) GetBeanWithArgs(name string, args ...any) (any, error) {
	return f.doGetBean(f.creation(), name, nil, args)
}

func (f *boundFactory) GetBeanByType(typ reflect.Type) (any, error) {
	v, _, err := f.resolveDependency(f.creation(), "", DependencyDescriptor{Type: typ, Required: true})
	return v, err
}

func (f *boundFactory) IsSingleton(name string) (bool, error) {
	return f.isSingleton(f.creation(), name)
}

func (f *boundFactory) IsPrototype(name string) (bool, error) {
	return f.isPrototype(f.creation(), name)
}

func (f *boundFactory) GetType(name string) (reflect.Type, error) {
	return f.typeOf(f.creation(), name, true)
}

func (f *boundFactory) ResolveDependency(desc DependencyDescriptor) (any, error) {
	v, _, err := f.resolveDependency(f.creation(), "", desc)
	return v, err
}

func (f *boundFactory) IsTypeMatch(name string, typ reflect.Type) (bool, error) {
	return f.isTypeMatch(f.creation(), name, typ, true)
}

func (f *boundFactory) BeansOfType(typ reflect.Type) (map[string]any, error) {
	return f.beansOfType(f.creation(), typ)
}
