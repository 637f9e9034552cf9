package nasc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// singletonRegistry owns every singleton instance of a factory.
//
// A name lives in at most one of objects, early and factories. early and
// factories are only consulted by the goroutine holding the factory's
// creation lock, so half-built objects never leak to concurrent callers.
type singletonRegistry struct {
	mu         sync.RWMutex
	objects    map[string]any
	early      map[string]any
	factories  map[string]ObjectFactory
	registered []string
	inCreation map[string]bool
	destroying bool

	// products caches the objects of singleton FactoryBeans by factory name.
	products map[string]any

	graphMu      sync.Mutex
	dependents   map[string][]string
	dependencies map[string][]string
	contained    map[string][]string

	disposablesMu sync.Mutex
	disposables   map[string]*disposableBean
	disposeOrder  []string

	log zerolog.Logger
}

func newSingletonRegistry(log zerolog.Logger) *singletonRegistry {
	return &singletonRegistry{
		objects:      make(map[string]any),
		early:        make(map[string]any),
		factories:    make(map[string]ObjectFactory),
		inCreation:   make(map[string]bool),
		products:     make(map[string]any),
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		contained:    make(map[string][]string),
		disposables:  make(map[string]*disposableBean),
		log:          log,
	}
}

// register stores an externally created singleton.
func (s *singletonRegistry) register(name string, obj any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; exists {
		return fmt.Errorf("could not register object under bean name %q: there is already an object bound", name)
	}
	s.addLocked(name, obj)
	return nil
}

func (s *singletonRegistry) add(name string, obj any) {
	s.mu.Lock()
	s.addLocked(name, obj)
	s.mu.Unlock()
}

func (s *singletonRegistry) addLocked(name string, obj any) {
	if _, exists := s.objects[name]; !exists {
		s.registered = append(s.registered, name)
	}
	s.objects[name] = obj
	delete(s.early, name)
	delete(s.factories, name)
}

// addFactory registers a provider of the raw early reference of name. It is
// ignored once a finished instance exists.
func (s *singletonRegistry) addFactory(name string, f ObjectFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; exists {
		return
	}
	s.factories[name] = f
	delete(s.early, name)
}

// get returns the singleton registered under name. With early set, a bean in
// creation yields its early reference, consuming its provider at most once.
func (s *singletonRegistry) get(name string, early bool) (any, bool, error) {
	s.mu.RLock()
	obj, ok := s.objects[name]
	creating := s.inCreation[name]
	s.mu.RUnlock()
	if ok || !creating || !early {
		return obj, ok, nil
	}

	s.mu.Lock()
	if obj, ok := s.objects[name]; ok {
		s.mu.Unlock()
		return obj, true, nil
	}
	if obj, ok := s.early[name]; ok {
		s.mu.Unlock()
		return obj, true, nil
	}
	f, ok := s.factories[name]
	if !ok {
		s.mu.Unlock()
		return nil, false, nil
	}
	delete(s.factories, name)
	s.mu.Unlock()

	ref, err := f()
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	s.early[name] = ref
	s.mu.Unlock()
	return ref, true, nil
}

// earlyReference returns the early reference of name if another bean
// consumed it.
func (s *singletonRegistry) earlyReference(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.early[name]
	return obj, ok
}

// getOrCreate returns the singleton under name, creating it with create.
// The caller must hold the factory's creation lock.
func (s *singletonRegistry) getOrCreate(name string, create ObjectFactory) (any, error) {
	s.mu.Lock()
	if obj, ok := s.objects[name]; ok {
		s.mu.Unlock()
		return obj, nil
	}
	if s.destroying {
		s.mu.Unlock()
		return nil, &CurrentlyInCreationError{Name: name, Reason: "singleton creation is not allowed while singletons of this factory are being destroyed"}
	}
	if s.inCreation[name] {
		s.mu.Unlock()
		return nil, &CurrentlyInCreationError{Name: name}
	}
	s.inCreation[name] = true
	s.mu.Unlock()

	s.log.Debug().Str("bean", name).Msg("creating shared instance of singleton bean")
	obj, err := create()

	s.mu.Lock()
	delete(s.inCreation, name)
	if err != nil {
		delete(s.early, name)
		delete(s.factories, name)
		s.mu.Unlock()
		return nil, err
	}
	s.addLocked(name, obj)
	s.mu.Unlock()
	return obj, nil
}

func (s *singletonRegistry) contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok
}

func (s *singletonRegistry) isInCreation(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inCreation[name]
}

// names returns finished singleton names in registration order.
func (s *singletonRegistry) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.registered))
	for _, name := range s.registered {
		if _, ok := s.objects[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (s *singletonRegistry) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *singletonRegistry) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	delete(s.early, name)
	delete(s.factories, name)
	delete(s.products, name)
	for i, n := range s.registered {
		if n == name {
			s.registered = append(s.registered[:i], s.registered[i+1:]...)
			break
		}
	}
}

func (s *singletonRegistry) product(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.products[name]
	return obj, ok
}

// addProduct caches the object of the singleton FactoryBean name, keeping an
// object cached earlier.
func (s *singletonRegistry) addProduct(name string, obj any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.products[name]; ok {
		return existing
	}
	if _, ok := s.objects[name]; ok {
		s.products[name] = obj
	}
	return obj
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// registerDependent records that dependent needs name.
func (s *singletonRegistry) registerDependent(name, dependent string) {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	s.dependents[name] = appendUnique(s.dependents[name], dependent)
	s.dependencies[dependent] = appendUnique(s.dependencies[dependent], name)
}

// registerContained records that the inner bean is owned by outer, which
// also makes outer a dependent of inner.
func (s *singletonRegistry) registerContained(inner, outer string) {
	s.graphMu.Lock()
	s.contained[outer] = appendUnique(s.contained[outer], inner)
	s.graphMu.Unlock()
	s.registerDependent(inner, outer)
}

// isDependent reports whether dependent needs name, directly or transitively.
func (s *singletonRegistry) isDependent(name, dependent string) bool {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return s.isDependentLocked(name, dependent, map[string]bool{})
}

func (s *singletonRegistry) isDependentLocked(name, dependent string, seen map[string]bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true
	for _, d := range s.dependents[name] {
		if d == dependent || s.isDependentLocked(d, dependent, seen) {
			return true
		}
	}
	return false
}

func (s *singletonRegistry) hasDependents(name string) bool {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return len(s.dependents[name]) > 0
}

func (s *singletonRegistry) dependentsOf(name string) []string {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return append([]string(nil), s.dependents[name]...)
}

func (s *singletonRegistry) dependenciesOf(name string) []string {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return append([]string(nil), s.dependencies[name]...)
}

func (s *singletonRegistry) registerDisposable(name string, d *disposableBean) {
	s.disposablesMu.Lock()
	defer s.disposablesMu.Unlock()
	if _, exists := s.disposables[name]; !exists {
		s.disposeOrder = append(s.disposeOrder, name)
	}
	s.disposables[name] = d
}

func (s *singletonRegistry) takeDisposable(name string) *disposableBean {
	s.disposablesMu.Lock()
	defer s.disposablesMu.Unlock()
	d, ok := s.disposables[name]
	if !ok {
		return nil
	}
	delete(s.disposables, name)
	for i, n := range s.disposeOrder {
		if n == name {
			s.disposeOrder = append(s.disposeOrder[:i], s.disposeOrder[i+1:]...)
			break
		}
	}
	return d
}

// destroyAll destroys every disposable singleton in reverse registration
// order and clears all caches. It must not run concurrently with creation.
func (s *singletonRegistry) destroyAll() error {
	s.mu.Lock()
	s.destroying = true
	s.mu.Unlock()

	s.disposablesMu.Lock()
	order := append([]string(nil), s.disposeOrder...)
	s.disposablesMu.Unlock()

	s.log.Debug().Int("disposables", len(order)).Msg("destroying singletons")

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if err := s.destroy(order[i]); err != nil {
			errs = append(errs, err)
		}
	}

	s.graphMu.Lock()
	s.dependents = make(map[string][]string)
	s.dependencies = make(map[string][]string)
	s.contained = make(map[string][]string)
	s.graphMu.Unlock()

	s.mu.Lock()
	s.objects = make(map[string]any)
	s.early = make(map[string]any)
	s.factories = make(map[string]ObjectFactory)
	s.products = make(map[string]any)
	s.registered = nil
	s.destroying = false
	s.mu.Unlock()

	return errors.Join(errs...)
}

// destroy removes the singleton name and destroys it after its dependents.
func (s *singletonRegistry) destroy(name string) error {
	s.remove(name)
	return s.destroyBean(name, s.takeDisposable(name))
}

func (s *singletonRegistry) destroyBean(name string, d *disposableBean) error {
	var errs []error

	s.graphMu.Lock()
	dependents := s.dependents[name]
	delete(s.dependents, name)
	s.graphMu.Unlock()
	for _, dependent := range dependents {
		if err := s.destroy(dependent); err != nil {
			errs = append(errs, err)
		}
	}

	if d != nil {
		s.log.Debug().Str("bean", name).Msg("destroying bean")
		if err := d.Destroy(); err != nil {
			s.log.Warn().Err(err).Str("bean", name).Msg("destroy callback failed")
			errs = append(errs, err)
		}
	}

	s.graphMu.Lock()
	contained := s.contained[name]
	delete(s.contained, name)
	s.graphMu.Unlock()
	for _, inner := range contained {
		if err := s.destroy(inner); err != nil {
			errs = append(errs, err)
		}
	}

	s.graphMu.Lock()
	for key, list := range s.dependents {
		for i, n := range list {
			if n == name {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(s.dependents, key)
		} else {
			s.dependents[key] = list
		}
	}
	delete(s.dependencies, name)
	s.graphMu.Unlock()

	return errors.Join(errs...)
}
