package nasc

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// InstantiationStrategy creates raw, unpopulated bean instances.
type InstantiationStrategy interface {
	// Instantiate creates the bean without arguments.
	Instantiate(mbd *registry.MergedDefinition, name string, owner BeanFactory) (any, error)
	// InstantiateWith calls fn, a constructor or factory function, with
	// resolved arguments.
	InstantiateWith(mbd *registry.MergedDefinition, name string, owner BeanFactory, fn reflect.Value, args []reflect.Value) (any, error)
}

// SimpleInstantiationStrategy calls constructors and allocates structs. It
// rejects definitions with method overrides.
type SimpleInstantiationStrategy struct{}

// Instantiate implements InstantiationStrategy.
func (SimpleInstantiationStrategy) Instantiate(mbd *registry.MergedDefinition, name string, _ BeanFactory) (any, error) {
	if len(mbd.MethodOverrides) > 0 {
		return nil, fmt.Errorf("method overrides are not supported by SimpleInstantiationStrategy")
	}
	return instantiateDefault(mbd, name)
}

// InstantiateWith implements InstantiationStrategy.
func (SimpleInstantiationStrategy) InstantiateWith(mbd *registry.MergedDefinition, name string, _ BeanFactory, fn reflect.Value, args []reflect.Value) (any, error) {
	if len(mbd.MethodOverrides) > 0 {
		return nil, fmt.Errorf("method overrides are not supported by SimpleInstantiationStrategy")
	}
	return invokeFunc(fn, args)
}

// OverridingInstantiationStrategy extends SimpleInstantiationStrategy with
// lookup and replace method overrides, installed into func-typed fields of
// the new instance.
type OverridingInstantiationStrategy struct{}

// Instantiate implements InstantiationStrategy.
func (OverridingInstantiationStrategy) Instantiate(mbd *registry.MergedDefinition, name string, owner BeanFactory) (any, error) {
	bean, err := instantiateDefault(mbd, name)
	if err != nil {
		return nil, err
	}
	return bean, applyMethodOverrides(bean, mbd.MethodOverrides, owner)
}

// InstantiateWith implements InstantiationStrategy.
func (OverridingInstantiationStrategy) InstantiateWith(mbd *registry.MergedDefinition, name string, owner BeanFactory, fn reflect.Value, args []reflect.Value) (any, error) {
	bean, err := invokeFunc(fn, args)
	if err != nil {
		return nil, err
	}
	return bean, applyMethodOverrides(bean, mbd.MethodOverrides, owner)
}

// instantiateDefault uses a zero-argument constructor, or allocates a new
// struct for pointer-to-struct types.
func instantiateDefault(mbd *registry.MergedDefinition, name string) (any, error) {
	for _, c := range mbd.Constructors {
		fn := reflect.ValueOf(c.Fn)
		if fn.Type().NumIn() == 0 {
			return invokeFunc(fn, nil)
		}
	}
	t := mbd.Type
	switch {
	case t == nil:
		return nil, fmt.Errorf("bean %q has no type, constructor or factory", name)
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct:
		return reflect.New(t.Elem()).Interface(), nil
	case len(mbd.Constructors) > 0:
		return nil, fmt.Errorf("no default constructor found for %v", t)
	}
	return nil, fmt.Errorf("cannot instantiate %v: register a constructor or use a pointer-to-struct type", t)
}

// invokeFunc calls a func returning T or (T, error).
func invokeFunc(fn reflect.Value, args []reflect.Value) (any, error) {
	var out []reflect.Value
	if fn.Type().IsVariadic() {
		out = fn.CallSlice(args)
	} else {
		out = fn.Call(args)
	}
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("function %v returns no value", fn.Type())
	}
	if isNilValue(out[0]) {
		return nil, nil
	}
	return out[0].Interface(), nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// validateFunc checks the T or (T, error) shape of a construction function.
func validateFunc(t reflect.Type) error {
	switch {
	case t.Kind() != reflect.Func:
		return fmt.Errorf("%v is not a function", t)
	case t.NumOut() == 1:
		return nil
	case t.NumOut() == 2 && t.Out(1) == errorType:
		return nil
	}
	return fmt.Errorf("function %v must return T or (T, error)", t)
}

// argument match weights; lower is a better match.
const (
	weightExact     = 0
	weightAssigned  = 1
	weightConverted = 2
)

// callable is one candidate construction function.
type callable struct {
	label  string
	fn     reflect.Value
	ctor   registry.Constructor
	params int
}

func newCallable(label string, fn reflect.Value, ctor registry.Constructor) callable {
	return callable{label: label, fn: fn, ctor: ctor, params: fn.Type().NumIn()}
}

// resolvedCallable is the construction decision cached on a merged
// definition between creations.
type resolvedCallable struct {
	label string
}

// createInstance produces the raw instance for mbd.
func (n *Nasc) createInstance(cc *creation, beanName string, mbd *registry.MergedDefinition, args []any) (any, error) {
	if mbd.Supplier != nil {
		bean, err := mbd.Supplier()
		if err != nil {
			return nil, creationFailed(beanName, "instance supplier failed", err)
		}
		return bean, nil
	}
	if mbd.FactoryMethod != "" || len(mbd.FactoryFuncs) > 0 {
		return n.instantiateUsingFactoryMethod(cc, beanName, mbd, args)
	}

	var nominated []registry.Constructor
	if mbd.Type != nil {
		var err error
		nominated, err = n.determineConstructorsFromProcessors(mbd.Type, beanName)
		if err != nil {
			return nil, creationFailed(beanName, "determining candidate constructors failed", err)
		}
	}
	if len(nominated) > 0 || mbd.ResolvedAutowire() == registry.AutowireConstructor ||
		mbd.HasConstructorArgs() || len(args) > 0 {
		ctors := nominated
		if len(ctors) == 0 {
			ctors = mbd.Constructors
		}
		cands := make([]callable, 0, len(ctors))
		for i, c := range ctors {
			fn := reflect.ValueOf(c.Fn)
			if err := validateFunc(fn.Type()); err != nil {
				return nil, creationFailed(beanName, "invalid constructor", err)
			}
			cands = append(cands, newCallable(fmt.Sprintf("constructor #%d %v", i, fn.Type()), fn, c))
		}
		autowiring := len(nominated) > 0 || mbd.ResolvedAutowire() == registry.AutowireConstructor
		return n.autowireCallables(cc, beanName, mbd, cands, args, autowiring)
	}

	bean, err := n.strategy.Instantiate(mbd, beanName, n.bind(cc, beanName))
	if err != nil {
		return nil, creationFailed(beanName, "instantiation of bean failed", err)
	}
	return bean, nil
}

// instantiateUsingFactoryMethod creates the bean through a static factory
// function or a method of another bean.
func (n *Nasc) instantiateUsingFactoryMethod(cc *creation, beanName string, mbd *registry.MergedDefinition, args []any) (any, error) {
	var cands []callable
	if mbd.FactoryBean != "" {
		factoryName := n.transformedBeanName(mbd.FactoryBean)
		if factoryName == beanName {
			return nil, creationFailed(beanName, "factory-bean reference points back to the same bean definition", nil)
		}
		factory, err := n.doGetBean(cc, mbd.FactoryBean, nil, nil)
		if err != nil {
			return nil, creationFailed(beanName, fmt.Sprintf("cannot obtain factory bean %q", mbd.FactoryBean), err)
		}
		n.singletons.registerDependent(factoryName, beanName)
		if factory == nil {
			return nil, creationFailed(beanName, fmt.Sprintf("factory bean %q is nil", mbd.FactoryBean), nil)
		}

		method := reflect.ValueOf(factory).MethodByName(mbd.FactoryMethod)
		if !method.IsValid() {
			return nil, creationFailed(beanName, fmt.Sprintf("no factory method %q on bean %q of type %T", mbd.FactoryMethod, mbd.FactoryBean, factory), nil)
		}
		if err := validateFunc(method.Type()); err != nil {
			return nil, creationFailed(beanName, "invalid factory method", err)
		}
		ctor := registry.Constructor{Name: mbd.FactoryMethod}
		for _, f := range mbd.FactoryFuncs {
			if f.Name == mbd.FactoryMethod {
				ctor.ParamNames = f.ParamNames
			}
		}
		cands = append(cands, newCallable(fmt.Sprintf("factory method %s.%s", mbd.FactoryBean, mbd.FactoryMethod), method, ctor))
	} else {
		for i, f := range mbd.FactoryFuncs {
			if mbd.FactoryMethod != "" && f.Name != mbd.FactoryMethod {
				continue
			}
			fn := reflect.ValueOf(f.Fn)
			if err := validateFunc(fn.Type()); err != nil {
				return nil, creationFailed(beanName, "invalid factory function", err)
			}
			label := f.Name
			if label == "" {
				label = fmt.Sprintf("factory function #%d", i)
			}
			cands = append(cands, newCallable(fmt.Sprintf("%s %v", label, fn.Type()), fn, f))
		}
		if len(cands) == 0 {
			return nil, creationFailed(beanName, fmt.Sprintf("no matching factory function found: factory method %q", mbd.FactoryMethod), nil)
		}
	}
	return n.autowireCallables(cc, beanName, mbd, cands, args, mbd.ResolvedAutowire() == registry.AutowireConstructor)
}

// autowireCallables picks the widest candidate whose parameters can all be
// satisfied and calls it. Candidates with equal width and equal match quality
// are ambiguous.
func (n *Nasc) autowireCallables(cc *creation, beanName string, mbd *registry.MergedDefinition, cands []callable, explicit []any, autowiring bool) (any, error) {
	if len(cands) == 0 {
		return nil, creationFailed(beanName, "no constructor or factory function available", nil)
	}

	if len(explicit) == 0 {
		if cached, ok := mbd.Resolution().(resolvedCallable); ok {
			for _, c := range cands {
				if c.label == cached.label {
					cands = []callable{c}
					break
				}
			}
		}
	}

	minArgs := len(explicit)
	if len(explicit) == 0 {
		minArgs = mbd.ConstructorArgs.Len()
		if pos := mbd.ConstructorArgs.IndexedPositions(); len(pos) > 0 && pos[len(pos)-1]+1 > minArgs {
			minArgs = pos[len(pos)-1] + 1
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].params > cands[j].params })

	var (
		best       *callable
		bestArgs   []reflect.Value
		bestUsed   []string
		bestWeight = math.MaxInt
		ambiguous  []string
		causes     []error
	)
	for i := range cands {
		c := &cands[i]
		if best != nil && c.params < len(bestArgs) {
			break
		}
		if c.params < minArgs {
			continue
		}

		var (
			args   []reflect.Value
			used   []string
			weight int
			err    error
		)
		if len(explicit) > 0 {
			if c.params != len(explicit) {
				continue
			}
			args, weight, err = explicitArgs(c, explicit)
		} else {
			args, used, weight, err = n.createArgumentArray(cc, beanName, mbd, c, autowiring)
		}
		if err != nil {
			n.log.Trace().Err(err).Str("bean", beanName).Str("candidate", c.label).Msg("candidate rejected")
			causes = append(causes, err)
			continue
		}

		switch {
		case weight < bestWeight:
			best, bestArgs, bestUsed, bestWeight = c, args, used, weight
			ambiguous = nil
		case weight == bestWeight && c.params == len(bestArgs):
			if ambiguous == nil {
				ambiguous = []string{best.label}
			}
			ambiguous = append(ambiguous, c.label)
		}
	}

	if best == nil {
		bce := &BeanCreationError{Name: beanName, Message: "could not resolve a matching constructor or factory function"}
		if len(causes) > 0 {
			bce.Cause = causes[len(causes)-1]
			for _, c := range causes[:len(causes)-1] {
				bce.AddRelated(c)
			}
		}
		return nil, bce
	}
	if len(ambiguous) > 0 {
		return nil, creationFailed(beanName, "", &AmbiguousConstructorError{Name: beanName, Candidates: ambiguous})
	}

	if len(explicit) == 0 {
		mbd.CacheResolution(resolvedCallable{label: best.label})
	}
	for _, dep := range bestUsed {
		n.singletons.registerDependent(n.transformedBeanName(dep), beanName)
	}

	bean, err := n.strategy.InstantiateWith(mbd, beanName, n.bind(cc, beanName), best.fn, bestArgs)
	if err != nil {
		return nil, creationFailed(beanName, fmt.Sprintf("instantiation via %s failed", best.label), err)
	}
	return bean, nil
}

// explicitArgs converts caller-supplied arguments to the parameter types.
func explicitArgs(c *callable, explicit []any) ([]reflect.Value, int, error) {
	t := c.fn.Type()
	args := make([]reflect.Value, len(explicit))
	weight := 0
	for i, v := range explicit {
		pt := t.In(i)
		w, err := argWeight(v, pt)
		if err != nil {
			return nil, 0, err
		}
		cv, err := convertValue(v, pt)
		if err != nil {
			return nil, 0, err
		}
		args[i] = cv
		weight += w
	}
	return args, weight, nil
}

func argWeight(v any, pt reflect.Type) (int, error) {
	switch {
	case v == nil:
		return weightAssigned, nil
	case reflect.TypeOf(v) == pt:
		return weightExact, nil
	case reflect.TypeOf(v).AssignableTo(pt):
		return weightAssigned, nil
	}
	return weightConverted, nil
}

// createArgumentArray resolves every parameter of c from the definition's
// constructor arguments, falling back to autowiring by type.
func (n *Nasc) createArgumentArray(cc *creation, beanName string, mbd *registry.MergedDefinition, c *callable, autowiring bool) ([]reflect.Value, []string, int, error) {
	t := c.fn.Type()
	args := make([]reflect.Value, c.params)
	var usedBeans []string
	used := make(map[int]bool)
	weight := 0
	argCount := mbd.ConstructorArgs.Len()

	for i := 0; i < c.params; i++ {
		pt := t.In(i)
		name := c.ctor.ParamName(i)
		point := fmt.Sprintf("parameter %d of %s", i, c.label)
		if name != "" {
			point = fmt.Sprintf("parameter %d (%s) of %s", i, name, c.label)
		}

		arg, ok := mbd.ConstructorArgs.Lookup(i, pt, name, used)
		matched := ok && (arg.Name != "" || arg.Type != nil)
		if !ok && (!autowiring || c.params == argCount) {
			arg, ok = mbd.ConstructorArgs.LookupGeneric(nil, "", used)
		}

		if ok {
			resolved, err := n.resolveValue(cc, beanName, mbd, point, arg.Value, pt)
			if err != nil {
				return nil, nil, 0, err
			}
			w, _ := argWeight(resolved, pt)
			if matched && w < weightConverted {
				w = weightExact
			}
			cv, err := convertValue(resolved, pt)
			if err != nil {
				return nil, nil, 0, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point, Cause: err}
			}
			args[i] = cv
			weight += w
			continue
		}

		if !autowiring {
			return nil, nil, 0, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point,
				Cause: errors.New("no argument value given and the definition is not autowired by constructor")}
		}
		value, names, err := n.resolveDependency(cc, beanName, DependencyDescriptor{Type: pt, Name: name, Required: true})
		if err != nil {
			return nil, nil, 0, &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: point, Cause: err}
		}
		args[i] = beanValue(value, pt)
		usedBeans = append(usedBeans, names...)
	}
	return args, usedBeans, weight, nil
}
