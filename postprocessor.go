package nasc

import (
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// Ordering bounds for Ordered implementations.
const (
	HighestPrecedence = math.MinInt32
	LowestPrecedence  = math.MaxInt32
)

// Ordered is implemented by post-processors and beans with an explicit
// position. Lower values come first.
type Ordered interface {
	Order() int
}

// PriorityOrdered marks an Ordered value that runs before every plain
// Ordered one.
type PriorityOrdered interface {
	Ordered
	PriorityOrdered()
}

// orderRank groups values as PriorityOrdered (0), Ordered (1), unordered (2).
func orderRank(v any) (rank int, order int) {
	switch o := v.(type) {
	case PriorityOrdered:
		return 0, o.Order()
	case Ordered:
		return 1, o.Order()
	default:
		return 2, LowestPrecedence
	}
}

// sortByOrder sorts values stably by rank and then order value.
func sortByOrder[T any](values []T) {
	sort.SliceStable(values, func(i, j int) bool {
		ri, oi := orderRank(values[i])
		rj, oj := orderRank(values[j])
		if ri != rj {
			return ri < rj
		}
		return oi < oj
	})
}

// BeanPostProcessor hooks wrap the init callbacks of every bean. Either hook
// may return a different object, which replaces the bean from then on.
// Returning nil keeps the current object.
type BeanPostProcessor interface {
	PostProcessBeforeInitialization(bean any, name string) (any, error)
	PostProcessAfterInitialization(bean any, name string) (any, error)
}

// InstantiationAwareBeanPostProcessor adds hooks around raw instantiation and
// property population.
type InstantiationAwareBeanPostProcessor interface {
	BeanPostProcessor
	// PostProcessBeforeInstantiation may return a finished object that
	// replaces normal construction. The after-initialization hooks still run
	// on it.
	PostProcessBeforeInstantiation(typ reflect.Type, name string) (any, error)
	// PostProcessAfterInstantiation returns false to skip property population.
	PostProcessAfterInstantiation(bean any, name string) (bool, error)
	// PostProcessProperties may rewrite the property set; returning nil
	// vetoes population entirely.
	PostProcessProperties(pvs *registry.PropertyValues, bean any, name string) (*registry.PropertyValues, error)
}

// SmartInstantiationAwareBeanPostProcessor adds type prediction, constructor
// nomination and early reference wrapping.
type SmartInstantiationAwareBeanPostProcessor interface {
	InstantiationAwareBeanPostProcessor
	PredictBeanType(typ reflect.Type, name string) (reflect.Type, error)
	DetermineCandidateConstructors(typ reflect.Type, name string) ([]registry.Constructor, error)
	GetEarlyBeanReference(bean any, name string) (any, error)
}

// MergedBeanDefinitionPostProcessor may edit a merged definition once,
// before its first population.
type MergedBeanDefinitionPostProcessor interface {
	BeanPostProcessor
	PostProcessMergedBeanDefinition(def *registry.MergedDefinition, typ reflect.Type, name string) error
}

// DestructionAwareBeanPostProcessor runs before a bean's own destroy callbacks.
type DestructionAwareBeanPostProcessor interface {
	BeanPostProcessor
	PostProcessBeforeDestruction(bean any, name string) error
	RequiresDestruction(bean any) bool
}

// PostProcessorAdapter implements every hook as a no-op. Embed it and
// override the hooks you need.
type PostProcessorAdapter struct{}

func (PostProcessorAdapter) PostProcessBeforeInitialization(bean any, _ string) (any, error) {
	return bean, nil
}

func (PostProcessorAdapter) PostProcessAfterInitialization(bean any, _ string) (any, error) {
	return bean, nil
}

func (PostProcessorAdapter) PostProcessBeforeInstantiation(reflect.Type, string) (any, error) {
	return nil, nil
}

func (PostProcessorAdapter) PostProcessAfterInstantiation(any, string) (bool, error) {
	return true, nil
}

func (PostProcessorAdapter) PostProcessProperties(pvs *registry.PropertyValues, _ any, _ string) (*registry.PropertyValues, error) {
	return pvs, nil
}

func (PostProcessorAdapter) PredictBeanType(reflect.Type, string) (reflect.Type, error) {
	return nil, nil
}

func (PostProcessorAdapter) DetermineCandidateConstructors(reflect.Type, string) ([]registry.Constructor, error) {
	return nil, nil
}

func (PostProcessorAdapter) GetEarlyBeanReference(bean any, _ string) (any, error) {
	return bean, nil
}

// pipeline keeps post-processors in application order and caches the
// per-capability views.
type pipeline struct {
	mu         sync.RWMutex
	processors []BeanPostProcessor
	cache      *pipelineView
}

type pipelineView struct {
	all                []BeanPostProcessor
	instantiationAware []InstantiationAwareBeanPostProcessor
	smart              []SmartInstantiationAwareBeanPostProcessor
	mergedDefinition   []MergedBeanDefinitionPostProcessor
	destructionAware   []DestructionAwareBeanPostProcessor
}

// add registers p, moving it to its sorted position if it was present.
func (p *pipeline) add(bpp BeanPostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, have := range p.processors {
		if have == bpp {
			p.processors = append(p.processors[:i], p.processors[i+1:]...)
			break
		}
	}
	p.processors = append(p.processors, bpp)
	sortByOrder(p.processors)
	p.cache = nil
}

func (p *pipeline) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.processors)
}

// view returns an immutable snapshot for lock-free iteration.
func (p *pipeline) view() *pipelineView {
	p.mu.RLock()
	v := p.cache
	p.mu.RUnlock()
	if v != nil {
		return v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache != nil {
		return p.cache
	}
	v = &pipelineView{all: append([]BeanPostProcessor(nil), p.processors...)}
	for _, bpp := range p.processors {
		if ia, ok := bpp.(InstantiationAwareBeanPostProcessor); ok {
			v.instantiationAware = append(v.instantiationAware, ia)
		}
		if s, ok := bpp.(SmartInstantiationAwareBeanPostProcessor); ok {
			v.smart = append(v.smart, s)
		}
		if m, ok := bpp.(MergedBeanDefinitionPostProcessor); ok {
			v.mergedDefinition = append(v.mergedDefinition, m)
		}
		if d, ok := bpp.(DestructionAwareBeanPostProcessor); ok {
			v.destructionAware = append(v.destructionAware, d)
		}
	}
	p.cache = v
	return v
}

func (n *Nasc) applyBeforeInstantiation(typ reflect.Type, name string) (any, error) {
	for _, p := range n.processors.view().instantiationAware {
		bean, err := p.PostProcessBeforeInstantiation(typ, name)
		if err != nil {
			return nil, err
		}
		if bean != nil {
			return bean, nil
		}
	}
	return nil, nil
}

func (n *Nasc) applyBeforeInitialization(bean any, name string) (any, error) {
	current := bean
	for _, p := range n.processors.view().all {
		next, err := p.PostProcessBeforeInitialization(current, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return current, nil
		}
		current = next
	}
	return current, nil
}

func (n *Nasc) applyAfterInitialization(bean any, name string) (any, error) {
	current := bean
	for _, p := range n.processors.view().all {
		next, err := p.PostProcessAfterInitialization(current, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return current, nil
		}
		current = next
	}
	return current, nil
}

func (n *Nasc) applyMergedDefinitionProcessors(mbd *registry.MergedDefinition, typ reflect.Type, name string) error {
	for _, p := range n.processors.view().mergedDefinition {
		if err := p.PostProcessMergedBeanDefinition(mbd, typ, name); err != nil {
			return err
		}
	}
	return nil
}

func (n *Nasc) determineConstructorsFromProcessors(typ reflect.Type, name string) ([]registry.Constructor, error) {
	for _, p := range n.processors.view().smart {
		ctors, err := p.DetermineCandidateConstructors(typ, name)
		if err != nil {
			return nil, err
		}
		if len(ctors) > 0 {
			return ctors, nil
		}
	}
	return nil, nil
}

// earlyBeanReference lets smart post-processors wrap a bean that is exposed
// before it is fully initialized.
func (n *Nasc) earlyBeanReference(name string, mbd *registry.MergedDefinition, bean any) (any, error) {
	exposed := bean
	if mbd.Synthetic {
		return exposed, nil
	}
	for _, p := range n.processors.view().smart {
		next, err := p.GetEarlyBeanReference(exposed, name)
		if err != nil {
			return nil, err
		}
		if next != nil {
			exposed = next
		}
	}
	return exposed, nil
}
