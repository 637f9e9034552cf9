package nasc

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// Registry errors surfaced unchanged by the factory.
type (
	DefinitionNotFoundError = registry.DefinitionNotFoundError
	AlreadyRegisteredError  = registry.AlreadyRegisteredError
	AliasCycleError         = registry.AliasCycleError
	ParentCycleError        = registry.ParentCycleError
	InvalidDefinitionError  = registry.InvalidDefinitionError
)

// BeanIsAbstractError is returned when an abstract definition is requested.
type BeanIsAbstractError struct {
	Name string
}

func (e *BeanIsAbstractError) Error() string {
	return fmt.Sprintf("bean definition %q is abstract and cannot be instantiated", e.Name)
}

// CircularPrototypeCreationError is returned when a prototype is requested
// again while it is being created on the same call.
type CircularPrototypeCreationError struct {
	Name string
}

func (e *CircularPrototypeCreationError) Error() string {
	return fmt.Sprintf("prototype bean %q is currently in creation: unresolvable circular reference", e.Name)
}

// CurrentlyInCreationError is returned when a singleton's creation is entered
// again without an early reference being available.
type CurrentlyInCreationError struct {
	Name   string
	Reason string
}

func (e *CurrentlyInCreationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bean %q is currently in creation: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("bean %q is currently in creation: is there an unresolvable circular reference?", e.Name)
}

// CircularDependsOnError is returned when dependsOn declarations form a loop.
type CircularDependsOnError struct {
	Name      string
	DependsOn string
}

func (e *CircularDependsOnError) Error() string {
	return fmt.Sprintf("circular depends-on relationship between %q and %q", e.Name, e.DependsOn)
}

// AmbiguousConstructorError is returned when more than one constructor (or
// factory function) matches equally well.
type AmbiguousConstructorError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousConstructorError) Error() string {
	return fmt.Sprintf("ambiguous constructor for bean %q: %s", e.Name, strings.Join(e.Candidates, ", "))
}

// AmbiguousDependencyError is returned when several beans qualify for a
// single-valued injection point and none can be preferred.
type AmbiguousDependencyError struct {
	Type       reflect.Type
	Candidates []string
}

func (e *AmbiguousDependencyError) Error() string {
	return fmt.Sprintf("expected a single matching bean of type %v but found %d: %s",
		e.Type, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// NoSuchBeanOfTypeError is returned when no bean qualifies for a required
// injection point.
type NoSuchBeanOfTypeError struct {
	Type      reflect.Type
	Qualifier string
}

func (e *NoSuchBeanOfTypeError) Error() string {
	if e.Qualifier != "" {
		return fmt.Sprintf("no qualifying bean of type %v with qualifier %q available", e.Type, e.Qualifier)
	}
	return fmt.Sprintf("no qualifying bean of type %v available", e.Type)
}

// BeanCreationError wraps any failure that aborted the creation of a bean.
// Related holds secondary failures met while unwinding.
type BeanCreationError struct {
	Name    string
	Message string
	Cause   error
	Related []error
}

func (e *BeanCreationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("error creating bean %q", e.Name))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if len(e.Related) > 0 {
		b.WriteString(fmt.Sprintf(" (%d related cause(s):", len(e.Related)))
		for _, r := range e.Related {
			b.WriteString(" ")
			b.WriteString(r.Error())
			b.WriteString(";")
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the primary cause.
func (e *BeanCreationError) Unwrap() error {
	return e.Cause
}

// AddRelated attaches a secondary failure.
func (e *BeanCreationError) AddRelated(err error) {
	if err != nil {
		e.Related = append(e.Related, err)
	}
}

// RawInjectionConflictError is returned when other beans received the raw
// early reference of a bean that was later wrapped.
type RawInjectionConflictError struct {
	Name       string
	Dependents []string
}

func (e *RawInjectionConflictError) Error() string {
	return fmt.Sprintf("bean %q has been injected into other beans [%s] in its raw version as part of a circular reference, but has eventually been wrapped: those beans do not use the final version",
		e.Name, strings.Join(e.Dependents, ", "))
}

// UnsatisfiedDependencyError is returned when an injection point (property or
// parameter) cannot be satisfied.
type UnsatisfiedDependencyError struct {
	Name           string
	InjectionPoint string
	Cause          error
}

func (e *UnsatisfiedDependencyError) Error() string {
	msg := fmt.Sprintf("unsatisfied dependency of bean %q through %s", e.Name, e.InjectionPoint)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *UnsatisfiedDependencyError) Unwrap() error {
	return e.Cause
}

// BeanNotOfRequiredTypeError is returned when a bean exists but does not
// match the requested type.
type BeanNotOfRequiredTypeError struct {
	Name     string
	Required reflect.Type
	Actual   reflect.Type
}

func (e *BeanNotOfRequiredTypeError) Error() string {
	return fmt.Sprintf("bean %q is expected to be of type %v but was actually of type %v", e.Name, e.Required, e.Actual)
}

// NotFactoryBeanError is returned when a factory dereference names a bean
// that is not a FactoryBean.
type NotFactoryBeanError struct {
	Name   string
	Actual reflect.Type
}

func (e *NotFactoryBeanError) Error() string {
	return fmt.Sprintf("bean %q is not a FactoryBean (type %v)", e.Name, e.Actual)
}

// NoSuchScopeError is returned when a definition names an unregistered scope.
type NoSuchScopeError struct {
	Scope string
	Name  string
}

func (e *NoSuchScopeError) Error() string {
	return fmt.Sprintf("no scope registered for scope name %q (bean %q)", e.Scope, e.Name)
}

// TypeMismatchError is returned when a configured value cannot be converted
// to the type of its injection point.
type TypeMismatchError struct {
	Value  any
	Target reflect.Type
	Cause  error
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("cannot convert value of type %T to required type %v", e.Value, e.Target)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TypeMismatchError) Unwrap() error {
	return e.Cause
}

// creationFailed wraps err for bean name unless it already is a creation
// failure of that same bean.
func creationFailed(name, message string, err error) error {
	if bce, ok := err.(*BeanCreationError); ok && bce.Name == name && message == "" {
		return bce
	}
	return &BeanCreationError{Name: name, Message: message, Cause: err}
}
