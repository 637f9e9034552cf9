package nasc

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "abstract",
			err:  &BeanIsAbstractError{Name: "base"},
			want: `bean definition "base" is abstract and cannot be instantiated`,
		},
		{
			name: "prototype cycle",
			err:  &CircularPrototypeCreationError{Name: "a"},
			want: `prototype bean "a" is currently in creation: unresolvable circular reference`,
		},
		{
			name: "in creation",
			err:  &CurrentlyInCreationError{Name: "a"},
			want: `bean "a" is currently in creation: is there an unresolvable circular reference?`,
		},
		{
			name: "in creation with reason",
			err:  &CurrentlyInCreationError{Name: "a", Reason: "circular references are disabled"},
			want: `bean "a" is currently in creation: circular references are disabled`,
		},
		{
			name: "depends on cycle",
			err:  &CircularDependsOnError{Name: "a", DependsOn: "b"},
			want: `circular depends-on relationship between "a" and "b"`,
		},
		{
			name: "ambiguous constructor",
			err:  &AmbiguousConstructorError{Name: "srv", Candidates: []string{"newA", "newB"}},
			want: `ambiguous constructor for bean "srv": newA, newB`,
		},
		{
			name: "ambiguous dependency",
			err:  &AmbiguousDependencyError{Type: loggerType, Candidates: []string{"a", "b"}},
			want: "expected a single matching bean of type nasc.Logger but found 2: a, b",
		},
		{
			name: "no bean of type",
			err:  &NoSuchBeanOfTypeError{Type: widgetType},
			want: "no qualifying bean of type *nasc.Widget available",
		},
		{
			name: "no bean of type with qualifier",
			err:  &NoSuchBeanOfTypeError{Type: widgetType, Qualifier: "main"},
			want: `no qualifying bean of type *nasc.Widget with qualifier "main" available`,
		},
		{
			name: "raw injection",
			err:  &RawInjectionConflictError{Name: "a", Dependents: []string{"b", "c"}},
			want: `bean "a" has been injected into other beans [b, c] in its raw version as part of a circular reference, but has eventually been wrapped: those beans do not use the final version`,
		},
		{
			name: "not of required type",
			err:  &BeanNotOfRequiredTypeError{Name: "w", Required: loggerType, Actual: widgetType},
			want: `bean "w" is expected to be of type nasc.Logger but was actually of type *nasc.Widget`,
		},
		{
			name: "not a factory bean",
			err:  &NotFactoryBeanError{Name: "w", Actual: widgetType},
			want: `bean "w" is not a FactoryBean (type *nasc.Widget)`,
		},
		{
			name: "no scope",
			err:  &NoSuchScopeError{Scope: "request", Name: "w"},
			want: `no scope registered for scope name "request" (bean "w")`,
		},
		{
			name: "type mismatch",
			err:  &TypeMismatchError{Value: "abc", Target: reflect.TypeOf(0)},
			want: "cannot convert value of type string to required type int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestBeanCreationError(t *testing.T) {
	cause := errors.New("boom")
	err := &BeanCreationError{Name: "svc", Message: "init method failed", Cause: cause}

	assert.Equal(t, `error creating bean "svc": init method failed: boom`, err.Error())
	assert.ErrorIs(t, err, cause)

	err.AddRelated(nil)
	err.AddRelated(errors.New("cleanup failed"))
	require.Len(t, err.Related, 1)
	assert.Equal(t, `error creating bean "svc": init method failed: boom (1 related cause(s): cleanup failed;)`, err.Error())
}

func TestUnsatisfiedDependencyError(t *testing.T) {
	cause := &NoSuchBeanOfTypeError{Type: loggerType}
	err := &UnsatisfiedDependencyError{Name: "svc", InjectionPoint: "property Logger", Cause: cause}

	assert.Equal(t, `unsatisfied dependency of bean "svc" through property Logger: no qualifying bean of type nasc.Logger available`, err.Error())

	var target *NoSuchBeanOfTypeError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, loggerType, target.Type)
}

func TestCreationFailed(t *testing.T) {
	cause := errors.New("boom")

	first := creationFailed("svc", "", cause)
	var bce *BeanCreationError
	require.ErrorAs(t, first, &bce)
	assert.Equal(t, "svc", bce.Name)

	assert.Same(t, bce, creationFailed("svc", "", first), "same bean is not wrapped twice")

	outer := creationFailed("outer", "", first)
	var outerErr *BeanCreationError
	require.ErrorAs(t, outer, &outerErr)
	assert.Equal(t, "outer", outerErr.Name)
	assert.ErrorIs(t, outer, cause)

	withMessage := creationFailed("svc", "init failed", first)
	assert.NotSame(t, bce, withMessage)
}

func TestTypeMismatchError_Unwrap(t *testing.T) {
	_, err := convertValue("abc", reflect.TypeOf(0))

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, reflect.TypeOf(0), mismatch.Target)
	assert.NotNil(t, errors.Unwrap(err))
}
