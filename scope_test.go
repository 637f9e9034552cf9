package nasc

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

func TestSimpleScope_GetReusesObject(t *testing.T) {
	scope := NewSimpleScope()
	calls := 0
	create := func() (any, error) {
		calls++
		return &Widget{X: calls}, nil
	}

	first, err := scope.Get("widget", create)
	require.NoError(t, err)
	second, err := scope.Get("widget", create)
	require.NoError(t, err)

	assert.Same(t, first.(*Widget), second.(*Widget))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, scope.Len())
}

func TestSimpleScope_CreationErrorIsNotStored(t *testing.T) {
	scope := NewSimpleScope()
	boom := errors.New("boom")

	_, err := scope.Get("widget", func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, scope.Len())

	obj, err := scope.Get("widget", func() (any, error) { return &Widget{X: 1}, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, obj.(*Widget).X)
}

func TestSimpleScope_ConcurrentGetCreatesOnce(t *testing.T) {
	scope := NewSimpleScope()
	var calls atomic.Int32
	create := func() (any, error) {
		calls.Add(1)
		return &Widget{}, nil
	}

	var g errgroup.Group
	results := make([]any, 32)
	for i := range results {
		i := i
		g.Go(func() error {
			obj, err := scope.Get("widget", create)
			results[i] = obj
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
	for _, obj := range results {
		assert.Same(t, results[0].(*Widget), obj.(*Widget))
	}
}

func TestSimpleScope_RemoveDropsCallback(t *testing.T) {
	scope := NewSimpleScope()
	_, err := scope.Get("widget", func() (any, error) { return &Widget{}, nil })
	require.NoError(t, err)

	destroyed := false
	scope.RegisterDestructionCallback("widget", func() error {
		destroyed = true
		return nil
	})

	obj, ok := scope.Remove("widget")
	require.True(t, ok)
	assert.IsType(t, &Widget{}, obj)

	_, ok = scope.Remove("widget")
	assert.False(t, ok)

	require.NoError(t, scope.Dispose())
	assert.False(t, destroyed)
}

func TestSimpleScope_DisposeOrder(t *testing.T) {
	parent := NewSimpleScope()
	child, err := parent.CreateChildScope()
	require.NoError(t, err)

	var events []string
	track := func(scope *SimpleScope, name string) {
		_, err := scope.Get(name, func() (any, error) { return name, nil })
		require.NoError(t, err)
		scope.RegisterDestructionCallback(name, func() error {
			events = append(events, name)
			return nil
		})
	}
	track(parent, "first")
	track(parent, "second")
	track(child, "child")

	require.NoError(t, parent.Dispose())
	assert.Equal(t, []string{"child", "second", "first"}, events)

	require.NoError(t, parent.Dispose(), "dispose twice is a no-op")
	assert.Len(t, events, 3)
	assert.Equal(t, 0, parent.Len())
}

func TestSimpleScope_DisposeJoinsErrors(t *testing.T) {
	scope := NewSimpleScope()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	for name, cbErr := range map[string]error{"a": errA, "b": errB} {
		cbErr := cbErr
		_, err := scope.Get(name, func() (any, error) { return name, nil })
		require.NoError(t, err)
		scope.RegisterDestructionCallback(name, func() error { return cbErr })
	}

	err := scope.Dispose()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 error(s)")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestSimpleScope_DisposedScope(t *testing.T) {
	scope := NewSimpleScope()
	require.NoError(t, scope.Dispose())

	_, err := scope.Get("widget", func() (any, error) { return &Widget{}, nil })
	assert.ErrorContains(t, err, "disposed scope")

	_, err = scope.CreateChildScope()
	assert.ErrorContains(t, err, "disposed scope")
}

func TestSimpleScope_DisposedDuringCreation(t *testing.T) {
	scope := NewSimpleScope()
	_, err := scope.Get("widget", func() (any, error) {
		require.NoError(t, scope.Dispose())
		return &Widget{}, nil
	})
	assert.ErrorContains(t, err, "disposed during creation")
}

func TestRegisterScope_Rejections(t *testing.T) {
	n := newTestFactory(t)

	assert.Error(t, n.RegisterScope(registry.ScopeSingleton, NewSimpleScope()))
	assert.Error(t, n.RegisterScope(registry.ScopePrototype, NewSimpleScope()))
	assert.Error(t, n.RegisterScope("", NewSimpleScope()))
	assert.Error(t, n.RegisterScope("request", nil))

	require.NoError(t, n.RegisterScope("session", NewSimpleScope()))
	require.NoError(t, n.RegisterScope("request", NewSimpleScope()))
	assert.Equal(t, []string{"request", "session"}, n.RegisteredScopeNames())

	_, ok := n.GetRegisteredScope("request")
	assert.True(t, ok)
	_, ok = n.GetRegisteredScope("conversation")
	assert.False(t, ok)
}

func TestCustomScope_BeanLifecycle(t *testing.T) {
	n := newTestFactory(t)
	request := NewSimpleScope()
	require.NoError(t, n.RegisterScope("request", request))

	var events []string
	register(t, n, "handler", &registry.BeanDefinition{
		Scope:    "request",
		Supplier: recorderSupplier("handler", &events, nil),
	})

	first, err := n.GetBean("handler")
	require.NoError(t, err)
	second, err := n.GetBean("handler")
	require.NoError(t, err)
	assert.Same(t, first.(*recorder), second.(*recorder))
	assert.False(t, n.ContainsSingleton("handler"))

	require.NoError(t, request.Dispose())
	assert.Equal(t, []string{"handler"}, events)
}

func TestCustomScope_FreshInstancePerScope(t *testing.T) {
	n := newTestFactory(t)
	require.NoError(t, n.RegisterScope("request", NewSimpleScope()))
	register(t, n, "widget", &registry.BeanDefinition{Type: widgetType, Scope: "request"})

	first, err := n.GetBean("widget")
	require.NoError(t, err)

	require.NoError(t, n.RegisterScope("request", NewSimpleScope()))
	second, err := n.GetBean("widget")
	require.NoError(t, err)

	assert.NotSame(t, first.(*Widget), second.(*Widget))
}

func TestDestroyScopedBean(t *testing.T) {
	n := newTestFactory(t)
	request := NewSimpleScope()
	require.NoError(t, n.RegisterScope("request", request))

	var events []string
	register(t, n, "handler", &registry.BeanDefinition{
		Scope:    "request",
		Supplier: recorderSupplier("handler", &events, nil),
	})
	register(t, n, "widget", &registry.BeanDefinition{Type: widgetType})

	require.NoError(t, n.DestroyScopedBean("handler"), "absent bean is not an error")

	_, err := n.GetBean("handler")
	require.NoError(t, err)
	require.Equal(t, 1, request.Len())

	require.NoError(t, n.DestroyScopedBean("handler"))
	assert.Equal(t, []string{"handler"}, events)
	assert.Equal(t, 0, request.Len())

	require.NoError(t, request.Dispose())
	assert.Len(t, events, 1, "removed bean is not destroyed twice")

	assert.ErrorContains(t, n.DestroyScopedBean("widget"), "not in a custom scope")
}

func TestCustomScope_NotRegistered(t *testing.T) {
	n := newTestFactory(t)
	register(t, n, "widget", &registry.BeanDefinition{Type: widgetType, Scope: "request"})

	_, err := n.GetBean("widget")
	var scopeErr *NoSuchScopeError
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, "request", scopeErr.Scope)
	assert.Equal(t, "widget", scopeErr.Name)
}

func TestCustomScope_CreationFailure(t *testing.T) {
	n := newTestFactory(t)
	require.NoError(t, n.RegisterScope("request", NewSimpleScope()))
	boom := errors.New("boom")
	register(t, n, "widget", &registry.BeanDefinition{
		Scope:    "request",
		Supplier: func() (any, error) { return nil, boom },
	})

	_, err := n.GetBean("widget")
	var creationErr *BeanCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, "widget", creationErr.Name)
	assert.Equal(t, "instance supplier failed", creationErr.Message)
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, err.Error(), "scope")
}

func TestCustomScope_ScopeFailure(t *testing.T) {
	n := newTestFactory(t)
	request := NewSimpleScope()
	require.NoError(t, n.RegisterScope("request", request))
	require.NoError(t, request.Dispose())
	register(t, n, "widget", &registry.BeanDefinition{Type: widgetType, Scope: "request"})

	_, err := n.GetBean("widget")
	var creationErr *BeanCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, "widget", creationErr.Name)
	assert.Equal(t, `scope "request" failed to provide the bean`, creationErr.Message)
	assert.ErrorContains(t, err, "disposed scope")
}
