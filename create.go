package nasc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// doGetBean is the lookup and creation entry point shared by every public
// lookup. cc carries the state of the current top-level request.
func (n *Nasc) doGetBean(cc *creation, name string, required reflect.Type, args []any) (any, error) {
	beanName := n.transformedBeanName(name)

	if len(args) == 0 {
		shared, ok, err := n.singletons.get(beanName, cc.locked())
		if err != nil {
			return nil, creationFailed(beanName, "early reference could not be obtained", err)
		}
		if ok {
			if n.singletons.isInCreation(beanName) {
				n.log.Debug().Str("bean", beanName).Msg("returning eagerly cached instance of singleton bean that is not fully initialized yet: a consequence of a circular reference")
			}
			bean, err := n.objectForInstance(cc, shared, name, beanName, nil)
			if err != nil {
				return nil, err
			}
			return n.adaptBean(name, bean, required)
		}
	}

	if cc.prototypeInCreation(beanName) {
		return nil, &CircularPrototypeCreationError{Name: beanName}
	}

	if n.parent != nil && !n.defs.Contains(beanName) {
		original := originalBeanName(name, beanName)
		switch {
		case len(args) > 0:
			return n.parent.GetBeanWithArgs(original, args...)
		case required != nil:
			return n.parent.GetBeanWithType(original, required)
		}
		return n.parent.GetBean(original)
	}

	n.markCreated(beanName)
	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return nil, err
	}
	if mbd.Abstract {
		return nil, &BeanIsAbstractError{Name: beanName}
	}

	for _, dep := range mbd.DependsOn {
		depName := n.transformedBeanName(dep)
		if n.singletons.isDependent(beanName, depName) {
			return nil, &CircularDependsOnError{Name: beanName, DependsOn: depName}
		}
		n.singletons.registerDependent(depName, beanName)
		if _, err := n.doGetBean(cc, dep, nil, nil); err != nil {
			return nil, creationFailed(beanName, fmt.Sprintf("%q depended on by this bean could not be created", dep), err)
		}
	}

	var bean any
	switch {
	case mbd.IsSingleton():
		n.lockCreation(cc)
		shared, err := n.singletons.getOrCreate(beanName, func() (any, error) {
			bean, err := n.createBean(cc, beanName, mbd, args)
			if err != nil {
				// Remove whatever was eagerly registered, including beans
				// that received a temporary reference.
				if destroyErr := n.singletons.destroy(beanName); destroyErr != nil {
					return nil, withRelated(beanName, err, destroyErr)
				}
			}
			return bean, err
		})
		n.unlockCreation(cc)
		if err != nil {
			return nil, err
		}
		bean, err = n.objectForInstance(cc, shared, name, beanName, mbd)
		if err != nil {
			return nil, err
		}

	case mbd.IsPrototype():
		cc.beforePrototype(beanName)
		instance, err := n.createBean(cc, beanName, mbd, args)
		cc.afterPrototype(beanName)
		if err != nil {
			return nil, err
		}
		bean, err = n.objectForInstance(cc, instance, name, beanName, mbd)
		if err != nil {
			return nil, err
		}

	default:
		scope, ok := n.GetRegisteredScope(mbd.Scope)
		if !ok {
			return nil, &NoSuchScopeError{Scope: mbd.Scope, Name: beanName}
		}
		var createErr error
		instance, err := scope.Get(beanName, func() (any, error) {
			cc.beforePrototype(beanName)
			defer cc.afterPrototype(beanName)
			obj, err := n.createBean(cc, beanName, mbd, args)
			createErr = err
			return obj, err
		})
		if err != nil {
			if createErr != nil && errors.Is(err, createErr) {
				return nil, createErr
			}
			return nil, creationFailed(beanName, fmt.Sprintf("scope %q failed to provide the bean", mbd.Scope), err)
		}
		bean, err = n.objectForInstance(cc, instance, name, beanName, mbd)
		if err != nil {
			return nil, err
		}
	}

	return n.adaptBean(name, bean, required)
}

// withRelated attaches a secondary failure to the creation error of beanName.
func withRelated(beanName string, primary, related error) error {
	bce := creationFailed(beanName, "", primary).(*BeanCreationError)
	bce.AddRelated(related)
	return bce
}

// adaptBean checks bean against the required type, converting it if needed.
func (n *Nasc) adaptBean(name string, bean any, required reflect.Type) (any, error) {
	if required == nil || bean == nil {
		return bean, nil
	}
	if reflect.TypeOf(bean).AssignableTo(required) {
		return bean, nil
	}
	converted, err := convertValue(bean, required)
	if err != nil {
		n.log.Trace().Err(err).Str("bean", name).Msg("failed to convert bean to required type")
		return nil, &BeanNotOfRequiredTypeError{Name: name, Required: required, Actual: reflect.TypeOf(bean)}
	}
	return converted.Interface(), nil
}

// createBean creates, populates and initializes one bean instance. A
// post-processor may short-circuit the whole process by returning an
// object before instantiation.
func (n *Nasc) createBean(cc *creation, beanName string, mbd *registry.MergedDefinition, args []any) (any, error) {
	defer n.enter(cc, beanName, hooksKey)()
	if !mbd.Synthetic && mbd.Type != nil {
		bean, err := n.applyBeforeInstantiation(mbd.Type, beanName)
		if err != nil {
			return nil, creationFailed(beanName, "post-processor before instantiation of bean failed", err)
		}
		if bean != nil {
			bean, err = n.applyAfterInitialization(bean, beanName)
			if err != nil {
				return nil, creationFailed(beanName, "post-processor after initialization of bean failed", err)
			}
			return bean, nil
		}
	}
	return n.doCreateBean(cc, beanName, mbd, args)
}

func (n *Nasc) doCreateBean(cc *creation, beanName string, mbd *registry.MergedDefinition, args []any) (any, error) {
	instance, err := n.createInstance(cc, beanName, mbd, args)
	if err != nil {
		return nil, err
	}

	err = mbd.PostProcessOnce(func() error {
		return n.applyMergedDefinitionProcessors(mbd, reflect.TypeOf(instance), beanName)
	})
	if err != nil {
		return nil, creationFailed(beanName, "post-processing of merged bean definition failed", err)
	}

	earlyExposure := mbd.IsSingleton() && n.allowCircularReferences && n.singletons.isInCreation(beanName)
	if earlyExposure {
		n.log.Debug().Str("bean", beanName).Msg("eagerly caching bean to allow for resolving potential circular references")
		n.singletons.addFactory(beanName, func() (any, error) {
			return n.earlyBeanReference(beanName, mbd, instance)
		})
	}

	if err := n.populateBean(cc, beanName, mbd, instance); err != nil {
		return nil, creationFailed(beanName, "", err)
	}
	exposed, err := n.initializeBean(cc, beanName, instance, mbd)
	if err != nil {
		return nil, err
	}

	if earlyExposure {
		if early, ok := n.singletons.earlyReference(beanName); ok {
			switch {
			case identical(exposed, instance):
				exposed = early
			case !n.allowRawInjection:
				var dependents []string
				for _, d := range n.singletons.dependentsOf(beanName) {
					if n.wasCreated(d) {
						dependents = append(dependents, d)
					}
				}
				if len(dependents) > 0 {
					return nil, &RawInjectionConflictError{Name: beanName, Dependents: dependents}
				}
			}
		}
	}

	if err := n.registerDisposableIfNecessary(beanName, exposed, mbd); err != nil {
		return nil, creationFailed(beanName, "invalid destruction signature", err)
	}
	return exposed, nil
}

func (n *Nasc) wasCreated(name string) bool {
	n.createdMu.Lock()
	defer n.createdMu.Unlock()
	return n.created[name]
}

// identical reports whether a and b are the same object. Values of types
// that cannot be compared are never identical.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return false
}

// populateBean applies property values, autowiring and tag injection to a
// raw instance.
func (n *Nasc) populateBean(cc *creation, beanName string, mbd *registry.MergedDefinition, bean any) error {
	if bean == nil {
		if mbd.Properties.Len() > 0 {
			return fmt.Errorf("cannot apply property values to nil instance")
		}
		return nil
	}

	view := n.processors.view()
	if !mbd.Synthetic {
		for _, p := range view.instantiationAware {
			proceed, err := p.PostProcessAfterInstantiation(bean, beanName)
			if err != nil {
				return err
			}
			if !proceed {
				return nil
			}
		}
	}

	pvs := mbd.Properties.Copy()
	pa := n.propertyAccessor(bean)

	mode := mbd.ResolvedAutowire()
	if pa != nil && (mode == registry.AutowireByName || mode == registry.AutowireByType) {
		var err error
		if mode == registry.AutowireByName {
			err = n.autowireByName(cc, beanName, pa, pvs)
		} else {
			err = n.autowireByType(cc, beanName, pa, pvs)
		}
		if err != nil {
			return err
		}
	}

	if n.tagInjection && !mbd.Synthetic {
		if err := n.injectTaggedFields(cc, beanName, bean, pvs); err != nil {
			return err
		}
	}

	if !mbd.Synthetic {
		for _, p := range view.instantiationAware {
			next, err := p.PostProcessProperties(pvs, bean, beanName)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}
			pvs = next
		}
	}

	if mbd.DependencyCheck != registry.DependencyCheckNone && pa != nil {
		if err := checkDependencies(beanName, mbd, pa, pvs); err != nil {
			return err
		}
	}

	return n.applyPropertyValues(cc, beanName, mbd, bean, pa, pvs)
}

func (n *Nasc) applyPropertyValues(cc *creation, beanName string, mbd *registry.MergedDefinition, bean any, pa PropertyAccessor, pvs *registry.PropertyValues) error {
	if pvs.Len() == 0 {
		return nil
	}
	if pa == nil {
		return fmt.Errorf("bean of type %T has no writable properties", bean)
	}

	for _, pv := range pvs.All() {
		point := "property " + pv.Name
		t, ok := pa.PropertyType(pv.Name)
		if !ok {
			return &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
				Cause: fmt.Errorf("invalid property %q of bean type %T: not writable", pv.Name, bean)}
		}
		resolved, err := n.resolveValue(cc, beanName, mbd, point, pv.Value, t)
		if err != nil {
			return err
		}
		converted, err := convertValue(resolved, t)
		if err != nil {
			return fmt.Errorf("failed to convert %s: %w", point, err)
		}
		var value any
		if converted.IsValid() {
			value = converted.Interface()
		}
		if err := pa.SetProperty(pv.Name, value); err != nil {
			return fmt.Errorf("error setting %s: %w", point, err)
		}
	}
	return nil
}

// initializeBean runs the aware callbacks, the init callbacks and the
// initialization hooks of the pipeline. It returns the object to expose.
func (n *Nasc) initializeBean(cc *creation, beanName string, bean any, mbd *registry.MergedDefinition) (any, error) {
	n.invokeAwareMethods(cc, beanName, bean)

	synthetic := mbd != nil && mbd.Synthetic
	wrapped := bean
	var err error
	if !synthetic {
		wrapped, err = n.applyBeforeInitialization(wrapped, beanName)
		if err != nil {
			return nil, creationFailed(beanName, "post-processor before initialization of bean failed", err)
		}
	}

	if err := n.invokeInitMethods(beanName, wrapped, mbd); err != nil {
		return nil, creationFailed(beanName, "invocation of init method failed", err)
	}

	if !synthetic {
		wrapped, err = n.applyAfterInitialization(wrapped, beanName)
		if err != nil {
			return nil, creationFailed(beanName, "post-processor after initialization of bean failed", err)
		}
	}
	return wrapped, nil
}

// registerDisposableIfNecessary registers the destruction callbacks of a
// singleton or custom-scoped bean. Prototypes are not tracked.
func (n *Nasc) registerDisposableIfNecessary(beanName string, bean any, mbd *registry.MergedDefinition) error {
	if mbd.IsPrototype() {
		return nil
	}
	processors := n.processors.view().destructionAware
	if !requiresDestruction(bean, mbd, processors) {
		return nil
	}
	d := newDisposableBean(beanName, bean, mbd, processors, n.log)

	if mbd.IsSingleton() {
		n.singletons.registerDisposable(beanName, d)
		return nil
	}
	scope, ok := n.GetRegisteredScope(mbd.Scope)
	if !ok {
		return &NoSuchScopeError{Scope: mbd.Scope, Name: beanName}
	}
	scope.RegisterDestructionCallback(beanName, d.Destroy)
	return nil
}

// PreInstantiateSingletons creates every non-abstract, non-lazy singleton in
// registration order. FactoryBeans are created themselves; their products
// only when they are SmartFactoryBeans asking for eager init. Afterwards
// every SmartInitializingSingleton is notified.
func (n *Nasc) PreInstantiateSingletons() error {
	names := n.defs.Names()
	n.log.Debug().Int("definitions", len(names)).Msg("pre-instantiating singletons")

	for _, name := range names {
		mbd, err := n.defs.Merged(name)
		if err != nil {
			return err
		}
		if mbd.Abstract || !mbd.IsSingleton() || mbd.IsLazy() {
			continue
		}
		isFactory, err := n.isFactoryBean(name)
		if err != nil {
			return err
		}
		if !isFactory {
			if _, err := n.GetBean(name); err != nil {
				return err
			}
			continue
		}
		factory, err := n.GetBean(FactoryBeanPrefix + name)
		if err != nil {
			return err
		}
		if smart, ok := factory.(SmartFactoryBean); ok && smart.IsEagerInit() {
			if _, err := n.GetBean(name); err != nil {
				return err
			}
		}
	}

	for _, name := range names {
		obj, ok, _ := n.singletons.get(name, false)
		if !ok {
			continue
		}
		if smart, ok := obj.(SmartInitializingSingleton); ok {
			if err := smart.AfterSingletonsInstantiated(); err != nil {
				return creationFailed(name, "after-singletons-instantiated callback failed", err)
			}
		}
	}
	return nil
}

// DestroySingletons destroys every singleton, dependents before the beans
// they depend on, in reverse registration order. Destruction continues past
// failing callbacks; their errors are joined.
func (n *Nasc) DestroySingletons() error {
	err := n.singletons.destroyAll()
	n.createdMu.Lock()
	n.created = make(map[string]bool)
	n.createdMu.Unlock()
	n.defs.ClearAllMerged()
	return err
}

// DestroySingleton destroys one singleton together with the beans depending
// on it.
func (n *Nasc) DestroySingleton(name string) error {
	return n.singletons.destroy(n.transformedBeanName(name))
}

// DestroyBean runs the destruction callbacks of an object created from the
// definition name, typically a prototype the factory does not track.
func (n *Nasc) DestroyBean(name string, bean any) error {
	mbd, err := n.MergedBeanDefinition(name)
	if err != nil {
		return err
	}
	processors := n.processors.view().destructionAware
	return newDisposableBean(name, bean, mbd, processors, n.log).Destroy()
}

// DestroyScopedBean removes the bean name from its custom scope and runs its
// destruction callbacks.
func (n *Nasc) DestroyScopedBean(name string) error {
	beanName := n.transformedBeanName(name)
	mbd, err := n.defs.Merged(beanName)
	if err != nil {
		return err
	}
	if mbd.IsSingleton() || mbd.IsPrototype() {
		return fmt.Errorf("bean %q is not in a custom scope", beanName)
	}
	scope, ok := n.GetRegisteredScope(mbd.Scope)
	if !ok {
		return &NoSuchScopeError{Scope: mbd.Scope, Name: beanName}
	}
	bean, ok := scope.Remove(beanName)
	if !ok {
		return nil
	}
	return n.DestroyBean(beanName, bean)
}
