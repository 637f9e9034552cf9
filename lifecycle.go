package nasc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// Initializable is implemented by beans that need a callback once all of
// their properties have been set. It runs before any configured init method.
//
// Example:
//
//	type Service struct{ DB *sql.DB }
//	func (s *Service) Initialize() error {
//	    return s.DB.Ping()
//	}
type Initializable interface {
	Initialize() error
}

// Disposable is implemented by beans that hold resources. Dispose is called
// when the owning factory or scope destroys the bean.
//
// Example:
//
//	type DatabaseConnection struct{}
//	func (d *DatabaseConnection) Dispose() error {
//	    return d.connection.Close()
//	}
type Disposable interface {
	Dispose() error
}

// BeanNameAware beans receive the name they were registered under.
type BeanNameAware interface {
	SetBeanName(name string)
}

// BeanFactoryAware beans receive the factory that created them.
type BeanFactoryAware interface {
	SetBeanFactory(factory BeanFactory)
}

// SmartInitializingSingleton is called once every eager singleton has been
// created by PreInstantiateSingletons.
type SmartInitializingSingleton interface {
	AfterSingletonsInstantiated() error
}

const (
	initializeMethod = "Initialize"
	disposeMethod    = "Dispose"
)

func (n *Nasc) invokeAwareMethods(cc *creation, name string, bean any) {
	if aware, ok := bean.(BeanNameAware); ok {
		aware.SetBeanName(name)
	}
	if aware, ok := bean.(BeanFactoryAware); ok {
		aware.SetBeanFactory(n.bind(cc, name))
	}
}

// invokeInitMethods runs Initialize and then the configured init method,
// skipping the latter when it names Initialize on an Initializable bean.
func (n *Nasc) invokeInitMethods(name string, bean any, mbd *registry.MergedDefinition) error {
	init, isInit := bean.(Initializable)
	if isInit {
		n.log.Trace().Str("bean", name).Msg("invoking Initialize")
		if err := init.Initialize(); err != nil {
			return err
		}
	}
	if mbd == nil || mbd.InitMethod == "" || (isInit && mbd.InitMethod == initializeMethod) {
		return nil
	}
	found, err := callMethod(bean, mbd.InitMethod)
	if !found {
		return fmt.Errorf("could not find an init method named %q on bean %q", mbd.InitMethod, name)
	}
	return err
}

// callMethod invokes a no-argument method by name. The method may return
// nothing or a single error.
func callMethod(bean any, method string) (bool, error) {
	if bean == nil {
		return false, nil
	}
	m := reflect.ValueOf(bean).MethodByName(method)
	if !m.IsValid() {
		return false, nil
	}
	mt := m.Type()
	if mt.NumIn() != 0 {
		return true, fmt.Errorf("method %q must not take arguments", method)
	}
	out := m.Call(nil)
	for _, v := range out {
		if v.Type().Implements(errorType) && !v.IsNil() {
			return true, v.Interface().(error)
		}
	}
	return true, nil
}

// inferDestroyMethod resolves the "(inferred)" destroy method to Close or
// Shutdown when the bean has one.
func inferDestroyMethod(bean any, configured string) string {
	if configured != registry.InferDestroyMethod {
		return configured
	}
	if _, ok := bean.(Disposable); ok {
		return ""
	}
	v := reflect.ValueOf(bean)
	for _, candidate := range []string{"Close", "Shutdown"} {
		if v.MethodByName(candidate).IsValid() {
			return candidate
		}
	}
	return ""
}

// disposableBean runs the destruction callbacks of one bean.
type disposableBean struct {
	name          string
	bean          any
	invokeDispose bool
	destroyMethod string
	processors    []DestructionAwareBeanPostProcessor
	log           zerolog.Logger
}

func newDisposableBean(name string, bean any, mbd *registry.MergedDefinition, processors []DestructionAwareBeanPostProcessor, log zerolog.Logger) *disposableBean {
	d := &disposableBean{name: name, bean: bean, log: log}
	_, d.invokeDispose = bean.(Disposable)
	if mbd != nil {
		d.destroyMethod = inferDestroyMethod(bean, mbd.DestroyMethod)
		if d.invokeDispose && d.destroyMethod == disposeMethod {
			d.destroyMethod = ""
		}
	}
	for _, p := range processors {
		if p.RequiresDestruction(bean) {
			d.processors = append(d.processors, p)
		}
	}
	return d
}

// requiresDestruction reports whether bean has anything to run on destroy.
func requiresDestruction(bean any, mbd *registry.MergedDefinition, processors []DestructionAwareBeanPostProcessor) bool {
	if bean == nil {
		return false
	}
	if _, ok := bean.(Disposable); ok {
		return true
	}
	if mbd != nil && inferDestroyMethod(bean, mbd.DestroyMethod) != "" {
		return true
	}
	for _, p := range processors {
		if p.RequiresDestruction(bean) {
			return true
		}
	}
	return false
}

// Destroy runs every registered callback, continuing past failures.
func (d *disposableBean) Destroy() error {
	var errs []error
	for _, p := range d.processors {
		if err := p.PostProcessBeforeDestruction(d.bean, d.name); err != nil {
			errs = append(errs, fmt.Errorf("destruction post-processor %T: %w", p, err))
		}
	}
	if d.invokeDispose {
		d.log.Trace().Str("bean", d.name).Msg("invoking Dispose")
		if err := d.bean.(Disposable).Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose: %w", err))
		}
	}
	if d.destroyMethod != "" {
		found, err := callMethod(d.bean, d.destroyMethod)
		switch {
		case !found:
			errs = append(errs, fmt.Errorf("could not find a destroy method named %q", d.destroyMethod))
		case err != nil:
			errs = append(errs, fmt.Errorf("destroy method %q: %w", d.destroyMethod, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("destroying bean %q: %w", d.name, errors.Join(errs...))
	}
	return nil
}
