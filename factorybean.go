package nasc

import (
	"reflect"
	"strings"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// FactoryBeanPrefix dereferences a FactoryBean: "&name" returns the factory
// itself instead of the object it produces.
const FactoryBeanPrefix = "&"

// FactoryBean is implemented by beans that produce another object. Looking
// the bean up by name returns the product; "&name" returns the factory.
//
// Example:
//
//	type ClientFactory struct{ Addr string }
//
//	func (f *ClientFactory) GetObject() (any, error)  { return dial(f.Addr) }
//	func (f *ClientFactory) ObjectType() reflect.Type { return reflect.TypeOf((*Client)(nil)) }
//	func (f *ClientFactory) IsSingleton() bool        { return true }
type FactoryBean interface {
	GetObject() (any, error)
	// ObjectType returns the product type, or nil if it is not known before
	// GetObject is called.
	ObjectType() reflect.Type
	// IsSingleton reports whether the product is cached after the first call.
	IsSingleton() bool
}

// SmartFactoryBean refines FactoryBean with prototype and eager-init hints.
type SmartFactoryBean interface {
	FactoryBean
	IsPrototype() bool
	// IsEagerInit asks PreInstantiateSingletons to create the product too.
	IsEagerInit() bool
}

var factoryBeanType = reflect.TypeOf((*FactoryBean)(nil)).Elem()

func isFactoryDereference(name string) bool {
	return strings.HasPrefix(name, FactoryBeanPrefix)
}

func isFactoryType(t reflect.Type) bool {
	return t != nil && t.Implements(factoryBeanType)
}

// transformedBeanName strips factory dereference prefixes and resolves
// aliases.
func (n *Nasc) transformedBeanName(name string) string {
	return n.defs.Canonical(strings.TrimLeft(name, FactoryBeanPrefix))
}

// originalBeanName re-applies a factory dereference prefix for delegation.
func originalBeanName(requested, canonical string) string {
	if isFactoryDereference(requested) {
		return FactoryBeanPrefix + canonical
	}
	return canonical
}

// objectForInstance returns the object to hand out for a bean instance: the
// instance itself, or the product when the instance is a FactoryBean and name
// does not dereference it.
func (n *Nasc) objectForInstance(cc *creation, instance any, name, beanName string, mbd *registry.MergedDefinition) (any, error) {
	if isFactoryDereference(name) {
		if instance == nil {
			return nil, nil
		}
		if _, ok := instance.(FactoryBean); !ok {
			return nil, &NotFactoryBeanError{Name: beanName, Actual: reflect.TypeOf(instance)}
		}
		return instance, nil
	}

	fb, ok := instance.(FactoryBean)
	if !ok {
		return instance, nil
	}
	if mbd == nil {
		if obj, ok := n.singletons.product(beanName); ok {
			return obj, nil
		}
	}
	postProcess := mbd == nil || !mbd.Synthetic
	return n.objectFromFactoryBean(cc, fb, beanName, postProcess)
}

func (n *Nasc) objectFromFactoryBean(cc *creation, fb FactoryBean, beanName string, postProcess bool) (any, error) {
	if !fb.IsSingleton() || !n.singletons.contains(beanName) {
		return n.newProduct(cc, fb, beanName, postProcess)
	}

	n.lockCreation(cc)
	defer n.unlockCreation(cc)

	if obj, ok := n.singletons.product(beanName); ok {
		return obj, nil
	}
	if cc.products[beanName] {
		return nil, &CurrentlyInCreationError{Name: beanName, Reason: "FactoryBean object is requested again while being created"}
	}
	cc.products[beanName] = true
	defer delete(cc.products, beanName)

	obj, err := n.newProduct(cc, fb, beanName, postProcess)
	if err != nil {
		return nil, err
	}
	return n.singletons.addProduct(beanName, obj), nil
}

// newProduct asks fb for a new object and runs it through the
// post-processors when postProcess is set.
func (n *Nasc) newProduct(cc *creation, fb FactoryBean, beanName string, postProcess bool) (any, error) {
	defer n.enter(cc, FactoryBeanPrefix+beanName, hooksKey)()
	obj, err := n.productOf(fb, beanName)
	if err != nil || !postProcess {
		return obj, err
	}
	return n.postProcessProduct(obj, beanName)
}

func (n *Nasc) productOf(fb FactoryBean, beanName string) (any, error) {
	obj, err := fb.GetObject()
	if err != nil {
		return nil, creationFailed(beanName, "FactoryBean threw exception on object creation", err)
	}
	return obj, nil
}

func (n *Nasc) postProcessProduct(obj any, beanName string) (any, error) {
	if obj == nil {
		return nil, nil
	}
	out, err := n.applyAfterInitialization(obj, beanName)
	if err != nil {
		return nil, creationFailed(beanName, "post-processing of FactoryBean's object failed", err)
	}
	return out, nil
}

// typeMatches reports whether a bean of type actual can be injected where
// want is required.
func typeMatches(actual, want reflect.Type) bool {
	if actual == nil || want == nil {
		return false
	}
	return actual == want || actual.AssignableTo(want)
}

// predictBeanType returns the type of the instance a definition creates,
// without creating it. For FactoryBean definitions it is the factory type.
func (n *Nasc) predictBeanType(name string, mbd *registry.MergedDefinition) reflect.Type {
	for _, p := range n.processors.view().smart {
		if t, err := p.PredictBeanType(mbd.Type, name); err == nil && t != nil {
			return t
		}
	}

	switch {
	case mbd.FactoryBean != "" && mbd.FactoryMethod != "":
		if n.transformedBeanName(mbd.FactoryBean) == name {
			return mbd.Type
		}
		factoryType, err := n.typeOf(nil, mbd.FactoryBean, false)
		if err != nil || factoryType == nil {
			return mbd.Type
		}
		if m, ok := factoryType.MethodByName(mbd.FactoryMethod); ok && m.Type.NumOut() > 0 {
			return m.Type.Out(0)
		}
		return mbd.Type
	case len(mbd.FactoryFuncs) > 0:
		var common reflect.Type
		for _, c := range mbd.FactoryFuncs {
			if mbd.FactoryMethod != "" && c.Name != mbd.FactoryMethod {
				continue
			}
			out := reflect.TypeOf(c.Fn).Out(0)
			if common != nil && common != out {
				return mbd.Type
			}
			common = out
		}
		if common != nil {
			return common
		}
	case mbd.Type == nil && len(mbd.Constructors) > 0:
		fnType := reflect.TypeOf(mbd.Constructors[0].Fn)
		if fnType.NumOut() > 0 {
			return fnType.Out(0)
		}
	}
	return mbd.Type
}

// factoryProductType resolves the product type of the FactoryBean
// definition beanName. With allowInit set the factory may be created to ask
// it.
func (n *Nasc) factoryProductType(cc *creation, beanName string, mbd *registry.MergedDefinition, allowInit bool) reflect.Type {
	if mbd.FactoryObjectType != nil {
		return mbd.FactoryObjectType
	}
	if !allowInit {
		return nil
	}
	factory, err := n.doGetBean(cc, FactoryBeanPrefix+beanName, nil, nil)
	if err != nil {
		n.log.Debug().Err(err).Str("bean", beanName).Msg("FactoryBean could not be created for type check")
		return nil
	}
	if fb, ok := factory.(FactoryBean); ok {
		return fb.ObjectType()
	}
	return nil
}

// isTypeMatch reports whether the bean name can be injected where typ is
// required.
func (n *Nasc) isTypeMatch(cc *creation, name string, typ reflect.Type, allowInit bool) (bool, error) {
	beanName := n.transformedBeanName(name)
	deref := isFactoryDereference(name)

	if obj, ok, _ := n.singletons.get(beanName, false); ok {
		if fb, isFactory := obj.(FactoryBean); isFactory {
			if deref {
				return typeMatches(reflect.TypeOf(obj), typ), nil
			}
			if product, cached := n.singletons.product(beanName); cached && product != nil {
				return typeMatches(reflect.TypeOf(product), typ), nil
			}
			return typeMatches(fb.ObjectType(), typ), nil
		}
		if deref || obj == nil {
			return false, nil
		}
		return typeMatches(reflect.TypeOf(obj), typ), nil
	}

	if !n.defs.Contains(beanName) {
		if n.parent != nil {
			return n.parent.IsTypeMatch(originalBeanName(name, beanName), typ)
		}
		return false, &DefinitionNotFoundError{Name: name}
	}

	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return false, err
	}
	predicted := n.predictBeanType(beanName, mbd)
	if predicted == nil {
		return false, nil
	}
	if isFactoryType(predicted) {
		if deref {
			return typeMatches(predicted, typ), nil
		}
		return typeMatches(n.factoryProductType(cc, beanName, mbd, allowInit), typ), nil
	}
	if deref {
		return false, nil
	}
	return typeMatches(predicted, typ), nil
}

// typeOf determines the type of the object name refers to. cc may be nil
// when allowInit is false.
func (n *Nasc) typeOf(cc *creation, name string, allowInit bool) (reflect.Type, error) {
	beanName := n.transformedBeanName(name)
	deref := isFactoryDereference(name)

	if obj, ok, _ := n.singletons.get(beanName, false); ok {
		if fb, isFactory := obj.(FactoryBean); isFactory && !deref {
			return fb.ObjectType(), nil
		}
		if obj == nil {
			return nil, nil
		}
		return reflect.TypeOf(obj), nil
	}

	if !n.defs.Contains(beanName) {
		if n.parent != nil {
			return n.parent.GetType(originalBeanName(name, beanName))
		}
		return nil, &DefinitionNotFoundError{Name: name}
	}

	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return nil, err
	}
	predicted := n.predictBeanType(beanName, mbd)
	if isFactoryType(predicted) && !deref {
		return n.factoryProductType(cc, beanName, mbd, allowInit), nil
	}
	if deref && !isFactoryType(predicted) {
		return nil, nil
	}
	return predicted, nil
}

// beanNamesForType lists the beans matching typ: definitions in registration
// order, then manually registered singletons. FactoryBeans match through
// their product; "&name" is listed when the factory itself matches.
func (n *Nasc) beanNamesForType(cc *creation, typ reflect.Type, includeNonSingletons, allowInit bool) []string {
	var out []string
	for _, name := range n.defs.Names() {
		mbd, err := n.defs.Merged(name)
		if err != nil || mbd.Abstract {
			continue
		}
		predicted := n.predictBeanType(name, mbd)
		if includeNonSingletons || n.productIsSingleton(name, mbd, predicted) {
			if ok, _ := n.isTypeMatch(cc, name, typ, allowInit); ok {
				out = append(out, name)
				continue
			}
		}
		if isFactoryType(predicted) && (includeNonSingletons || mbd.IsSingleton()) {
			if ok, _ := n.isTypeMatch(cc, FactoryBeanPrefix+name, typ, false); ok {
				out = append(out, FactoryBeanPrefix+name)
			}
		}
	}

	for _, name := range n.singletons.names() {
		if n.defs.Contains(name) {
			continue
		}
		obj, _, _ := n.singletons.get(name, false)
		if fb, ok := obj.(FactoryBean); ok {
			if (includeNonSingletons || fb.IsSingleton()) && typeMatches(fb.ObjectType(), typ) {
				out = append(out, name)
				continue
			}
			if typeMatches(reflect.TypeOf(obj), typ) {
				out = append(out, FactoryBeanPrefix+name)
			}
			continue
		}
		if obj != nil && typeMatches(reflect.TypeOf(obj), typ) {
			out = append(out, name)
		}
	}
	return out
}

// productIsSingleton reports whether looking up name yields a shared object.
func (n *Nasc) productIsSingleton(name string, mbd *registry.MergedDefinition, predicted reflect.Type) bool {
	if !mbd.IsSingleton() {
		return false
	}
	if !isFactoryType(predicted) {
		return true
	}
	if obj, ok, _ := n.singletons.get(name, false); ok {
		if fb, isFactory := obj.(FactoryBean); isFactory {
			return fb.IsSingleton()
		}
	}
	return true
}

// beanNamesIncludingAncestors adds matching beans of parent factories whose
// names are not defined locally.
func (n *Nasc) beanNamesIncludingAncestors(cc *creation, typ reflect.Type) []string {
	names := n.beanNamesForType(cc, typ, true, true)
	if n.parent == nil {
		return names
	}
	for _, name := range n.parent.beanNamesIncludingAncestors(newCreation(), typ) {
		local := strings.TrimLeft(name, FactoryBeanPrefix)
		if n.defs.Contains(local) || n.singletons.contains(local) {
			continue
		}
		names = appendUnique(names, name)
	}
	return names
}
