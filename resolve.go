package nasc

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// innerBeanPrefix starts the generated names of anonymous inner beans.
const innerBeanPrefix = "(inner bean)#"

// resolveValue turns a configured property or argument value into the object
// to inject. References are looked up (and recorded as dependencies of
// beanName), inner beans are created, and managed collections resolve their
// elements. Other values are returned unchanged.
func (n *Nasc) resolveValue(cc *creation, beanName string, mbd *registry.MergedDefinition, point string, value any, target reflect.Type) (any, error) {
	switch v := value.(type) {
	case registry.Ref:
		return n.resolveReference(cc, beanName, point, v)
	case *registry.Ref:
		return n.resolveReference(cc, beanName, point, *v)
	case registry.NameRef:
		name := string(v)
		if !n.ContainsBean(name) {
			return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
				Cause: fmt.Errorf("invalid bean name %q in bean reference", name)}
		}
		return name, nil
	case registry.Inner:
		return n.resolveInnerBean(cc, beanName, mbd, point, v)
	case *registry.Inner:
		return n.resolveInnerBean(cc, beanName, mbd, point, *v)
	case registry.List:
		return n.resolveList(cc, beanName, mbd, point, v.Items, target)
	case registry.Map:
		return n.resolveMap(cc, beanName, mbd, point, v.Entries, target)
	case []any:
		return n.resolveList(cc, beanName, mbd, point, v, target)
	case map[string]any:
		return n.resolveMap(cc, beanName, mbd, point, v, target)
	}
	return value, nil
}

func (n *Nasc) resolveReference(cc *creation, beanName, point string, ref registry.Ref) (any, error) {
	if ref.ToParent {
		if n.parent == nil {
			return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
				Cause: fmt.Errorf("cannot resolve reference to bean %q in parent factory: no parent factory available", ref.Name)}
		}
		bean, err := n.parent.GetBean(ref.Name)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point, Cause: err}
		}
		return bean, nil
	}

	bean, err := n.doGetBean(cc, ref.Name, nil, nil)
	if err != nil {
		return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
			Cause: fmt.Errorf("cannot resolve reference to bean %q: %w", ref.Name, err)}
	}
	n.singletons.registerDependent(n.transformedBeanName(ref.Name), beanName)
	return bean, nil
}

// resolveInnerBean creates an anonymous bean owned by beanName.
func (n *Nasc) resolveInnerBean(cc *creation, beanName string, outer *registry.MergedDefinition, point string, inner registry.Inner) (any, error) {
	if inner.Definition == nil {
		return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
			Cause: fmt.Errorf("inner bean has no definition")}
	}

	innerName := inner.Name
	if innerName == "" {
		innerName = innerBeanPrefix + uuid.NewString()
	} else if n.singletons.contains(innerName) || n.defs.Contains(innerName) {
		innerName += "#" + uuid.NewString()
	}

	mbd, err := n.defs.MergedWithin(innerName, inner.Definition, outer)
	if err != nil {
		return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point, Cause: err}
	}
	for _, dep := range mbd.DependsOn {
		n.singletons.registerDependent(n.transformedBeanName(dep), innerName)
		if _, err := n.doGetBean(cc, dep, nil, nil); err != nil {
			return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point, Cause: err}
		}
	}

	bean, err := n.createBean(cc, innerName, mbd, nil)
	if err != nil {
		return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
			Cause: fmt.Errorf("cannot create inner bean %q: %w", innerName, err)}
	}
	n.singletons.registerContained(innerName, beanName)

	if _, isFactory := bean.(FactoryBean); isFactory {
		product, err := n.objectForInstance(cc, bean, innerName, innerName, mbd)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point, Cause: err}
		}
		return product, nil
	}
	return bean, nil
}

func elemType(target reflect.Type) reflect.Type {
	if target == nil {
		return nil
	}
	switch target.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return target.Elem()
	}
	return nil
}

func (n *Nasc) resolveList(cc *creation, beanName string, mbd *registry.MergedDefinition, point string, items []any, target reflect.Type) (any, error) {
	elem := elemType(target)
	out := make([]any, len(items))
	for i, item := range items {
		v, err := n.resolveValue(cc, beanName, mbd, fmt.Sprintf("%s[%d]", point, i), item, elem)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (n *Nasc) resolveMap(cc *creation, beanName string, mbd *registry.MergedDefinition, point string, entries map[string]any, target reflect.Type) (any, error) {
	elem := elemType(target)
	out := make(map[string]any, len(entries))
	for _, key := range (registry.Map{Entries: entries}).SortedKeys() {
		v, err := n.resolveValue(cc, beanName, mbd, fmt.Sprintf("%s[%s]", point, key), entries[key], elem)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}
