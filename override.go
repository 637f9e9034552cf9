package nasc

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// MethodReplacer reimplements a func-typed field of another bean. It is the
// target of a ReplaceOverride.
type MethodReplacer interface {
	Reimplement(target any, field string, args []reflect.Value) ([]reflect.Value, error)
}

// applyMethodOverrides installs the overrides into the func-typed fields of
// bean. A lookup field returns a fresh lookup of its target bean on every
// call; a replace field forwards to its MethodReplacer.
func applyMethodOverrides(bean any, overrides []registry.MethodOverride, owner BeanFactory) error {
	if len(overrides) == 0 {
		return nil
	}
	v := reflect.ValueOf(bean)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("method overrides require a pointer to struct, got %T", bean)
	}
	s := v.Elem()

	for _, o := range overrides {
		f := s.FieldByName(o.FieldName())
		if !f.IsValid() || !f.CanSet() {
			return fmt.Errorf("no settable field %q on %T for method override", o.FieldName(), bean)
		}
		ft := f.Type()
		if ft.Kind() != reflect.Func {
			return fmt.Errorf("field %q of %T is not a func and cannot be overridden", o.FieldName(), bean)
		}

		var impl func([]reflect.Value) []reflect.Value
		switch o := o.(type) {
		case registry.LookupOverride:
			if ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && ft.Out(1) != errorType) {
				return fmt.Errorf("lookup field %q must return T or (T, error)", o.Field)
			}
			impl = lookupImpl(ft, o, owner)
		case registry.ReplaceOverride:
			impl = replaceImpl(ft, bean, o, owner)
		default:
			return fmt.Errorf("unsupported method override %T", o)
		}
		f.Set(reflect.MakeFunc(ft, impl))
	}
	return nil
}

func lookupImpl(ft reflect.Type, o registry.LookupOverride, owner BeanFactory) func([]reflect.Value) []reflect.Value {
	resultType := ft.Out(0)
	return func(args []reflect.Value) []reflect.Value {
		var (
			bean any
			err  error
		)
		if o.Bean != "" {
			bean, err = owner.GetBeanWithType(o.Bean, resultType)
		} else {
			bean, err = owner.GetBeanByType(resultType)
		}
		return funcResults(ft, bean, err)
	}
}

func replaceImpl(ft reflect.Type, target any, o registry.ReplaceOverride, owner BeanFactory) func([]reflect.Value) []reflect.Value {
	return func(args []reflect.Value) []reflect.Value {
		replacer, err := owner.GetBean(o.Replacer)
		if err != nil {
			return errorResults(ft, err)
		}
		mr, ok := replacer.(MethodReplacer)
		if !ok {
			return errorResults(ft, fmt.Errorf("bean %q does not implement MethodReplacer", o.Replacer))
		}
		out, err := mr.Reimplement(target, o.Field, args)
		if err != nil {
			return errorResults(ft, err)
		}
		if len(out) != ft.NumOut() {
			panic(fmt.Sprintf("replacer %q returned %d values for field %q, want %d", o.Replacer, len(out), o.Field, ft.NumOut()))
		}
		for i := range out {
			if !out[i].IsValid() {
				out[i] = reflect.Zero(ft.Out(i))
			}
		}
		return out
	}
}

// funcResults shapes a lookup result into the outputs of ft.
func funcResults(ft reflect.Type, bean any, err error) []reflect.Value {
	if err != nil {
		return errorResults(ft, err)
	}
	out := []reflect.Value{beanValue(bean, ft.Out(0))}
	if ft.NumOut() == 2 {
		out = append(out, reflect.Zero(errorType))
	}
	return out
}

// errorResults returns err through the last output of ft, or panics when ft
// has no error result.
func errorResults(ft reflect.Type, err error) []reflect.Value {
	if ft.NumOut() == 0 || ft.Out(ft.NumOut()-1) != errorType {
		panic(err)
	}
	out := make([]reflect.Value, ft.NumOut())
	for i := 0; i < ft.NumOut()-1; i++ {
		out[i] = reflect.Zero(ft.Out(i))
	}
	out[ft.NumOut()-1] = reflect.ValueOf(&err).Elem()
	return out
}
