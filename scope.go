package nasc

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ObjectFactory creates the object a scope stores under a name.
type ObjectFactory func() (any, error)

// Scope is a pluggable storage strategy for beans whose definition names a
// custom scope. The factory calls Get with a creator callback whenever the
// bean is requested; the scope decides whether to reuse a stored object.
//
// Example:
//
//	request := nasc.NewSimpleScope()
//	factory.RegisterScope("request", request)
//	defer request.Dispose()
type Scope interface {
	// Get returns the object stored under name, creating it with create when
	// the scope holds none.
	Get(name string, create ObjectFactory) (any, error)
	// Remove drops the object stored under name without destroying it.
	Remove(name string) (any, bool)
	// RegisterDestructionCallback registers a callback to run when the scope
	// destroys the object stored under name.
	RegisterDestructionCallback(name string, callback func() error)
}

// SimpleScope is a Scope backed by a map. Objects live until Dispose is
// called, which runs the destruction callbacks in reverse creation order after
// disposing every child scope.
type SimpleScope struct {
	mu        sync.RWMutex
	objects   map[string]any
	order     []string
	callbacks map[string]func() error
	children  []*SimpleScope
	disposed  bool

	creating singleflight.Group
}

// NewSimpleScope creates an empty scope.
func NewSimpleScope() *SimpleScope {
	return &SimpleScope{
		objects:   make(map[string]any),
		callbacks: make(map[string]func() error),
	}
}

// Get implements Scope. Concurrent calls for the same name share one
// creation.
func (s *SimpleScope) Get(name string, create ObjectFactory) (any, error) {
	s.mu.RLock()
	if s.disposed {
		s.mu.RUnlock()
		return nil, errors.New("cannot resolve from disposed scope")
	}
	obj, ok := s.objects[name]
	s.mu.RUnlock()
	if ok {
		return obj, nil
	}

	obj, err, _ := s.creating.Do(name, func() (any, error) {
		s.mu.RLock()
		existing, ok := s.objects[name]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := create()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.disposed {
			return nil, errors.New("scope was disposed during creation")
		}
		s.objects[name] = created
		s.order = append(s.order, name)
		return created, nil
	})
	return obj, err
}

// Remove implements Scope.
func (s *SimpleScope) Remove(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	delete(s.objects, name)
	delete(s.callbacks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return obj, true
}

// RegisterDestructionCallback implements Scope.
func (s *SimpleScope) RegisterDestructionCallback(name string, callback func() error) {
	s.mu.Lock()
	s.callbacks[name] = callback
	s.mu.Unlock()
}

// Len returns the number of stored objects.
func (s *SimpleScope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// CreateChildScope creates a child scope that is disposed together with s.
func (s *SimpleScope) CreateChildScope() (*SimpleScope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, errors.New("cannot create child scope from disposed scope")
	}
	child := NewSimpleScope()
	s.children = append(s.children, child)
	return child, nil
}

// Dispose destroys the scope. Child scopes go first, then stored objects in
// reverse creation order. Calling Dispose again is a no-op.
func (s *SimpleScope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	children := s.children
	order := s.order
	callbacks := s.callbacks
	s.children = nil
	s.order = nil
	s.objects = make(map[string]any)
	s.callbacks = make(map[string]func() error)
	s.mu.Unlock()

	var errs []error
	for _, child := range children {
		if err := child.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("child scope: %w", err))
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		cb, ok := callbacks[order[i]]
		if !ok {
			continue
		}
		if err := cb(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("scope disposal encountered %d error(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}
