package nasc

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// DependencyDescriptor describes one injection point: a constructor
// parameter, a property or a tagged field.
type DependencyDescriptor struct {
	Type reflect.Type
	// Name is the parameter or property name. It breaks ties between several
	// candidates when it equals one of their bean names.
	Name string
	// Qualifier restricts candidates to beans with that qualifier or name.
	Qualifier string
	Required  bool
}

func (d DependencyDescriptor) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%q of type %v", d.Name, d.Type)
	}
	return fmt.Sprintf("type %v", d.Type)
}

// candidate is a bean that can satisfy a dependency.
type candidate struct {
	name    string
	mbd     *registry.MergedDefinition
	primary bool
	prio    *int
}

// RegisterResolvableDependency makes value the answer to every injection
// point of type typ, without registering it as a bean.
func (n *Nasc) RegisterResolvableDependency(typ reflect.Type, value any) error {
	if typ == nil {
		return fmt.Errorf("dependency type cannot be nil")
	}
	if value != nil && !reflect.TypeOf(value).AssignableTo(typ) {
		return fmt.Errorf("value of type %T does not implement %v", value, typ)
	}
	n.resolvableMu.Lock()
	n.resolvable[typ] = value
	n.resolvableMu.Unlock()
	return nil
}

func (n *Nasc) resolvableDependency(typ reflect.Type) (any, bool) {
	n.resolvableMu.RLock()
	defer n.resolvableMu.RUnlock()

	if v, ok := n.resolvable[typ]; ok {
		return v, true
	}
	if typ == anyType {
		return nil, false
	}
	for key, v := range n.resolvable {
		if v != nil && key.AssignableTo(typ) && reflect.TypeOf(v).AssignableTo(typ) {
			return v, true
		}
	}
	return nil, false
}

// ResolveDependency resolves an injection point against the factory's beans
// as if it belonged to no particular bean.
func (n *Nasc) ResolveDependency(desc DependencyDescriptor) (any, error) {
	v, _, err := n.resolveDependency(newCreation(), "", desc)
	return v, err
}

// resolveDependency resolves desc on behalf of beanName. It returns the
// value and the names of the beans used. A nil value with a nil error means
// an optional point with no candidate.
func (n *Nasc) resolveDependency(cc *creation, beanName string, desc DependencyDescriptor) (any, []string, error) {
	if desc.Type == nil {
		return nil, nil, fmt.Errorf("dependency %s has no type", desc)
	}
	if v, ok := n.resolvableDependency(desc.Type); ok {
		if v == any(n) && beanName != "" && desc.Type.Kind() == reflect.Interface {
			return n.bind(cc, beanName), nil, nil
		}
		return v, nil, nil
	}

	if v, names, handled, err := n.resolveMultiple(cc, beanName, desc); handled {
		return v, names, err
	}

	cands := n.findCandidates(cc, beanName, desc.Type, desc.Qualifier)
	if len(cands) == 0 {
		if desc.Required {
			return nil, nil, &NoSuchBeanOfTypeError{Type: desc.Type, Qualifier: desc.Qualifier}
		}
		return nil, nil, nil
	}

	chosen := cands[0]
	if len(cands) > 1 {
		var err error
		chosen, err = n.determineAutowireCandidate(cands, desc)
		if err != nil {
			return nil, nil, err
		}
	}

	bean, err := n.doGetBean(cc, chosen.name, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if bean != nil && !reflect.TypeOf(bean).AssignableTo(desc.Type) {
		return nil, nil, &BeanNotOfRequiredTypeError{Name: chosen.name, Required: desc.Type, Actual: reflect.TypeOf(bean)}
	}
	return bean, []string{chosen.name}, nil
}

// resolveMultiple injects every matching bean into slice and string-keyed
// map points. handled is false for other types.
func (n *Nasc) resolveMultiple(cc *creation, beanName string, desc DependencyDescriptor) (value any, names []string, handled bool, err error) {
	t := desc.Type
	switch {
	case t.Kind() == reflect.Slice && !isSimpleType(t.Elem()):
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String && !isSimpleType(t.Elem()):
	default:
		return nil, nil, false, nil
	}

	cands := n.findCandidates(cc, beanName, t.Elem(), desc.Qualifier)
	if len(cands) == 0 {
		if desc.Required {
			return nil, nil, true, &NoSuchBeanOfTypeError{Type: t.Elem(), Qualifier: desc.Qualifier}
		}
		return nil, nil, true, nil
	}

	beans := make([]any, len(cands))
	for i, c := range cands {
		bean, err := n.doGetBean(cc, c.name, nil, nil)
		if err != nil {
			return nil, nil, true, err
		}
		beans[i] = bean
		names = append(names, c.name)
	}

	if t.Kind() == reflect.Map {
		out := reflect.MakeMapWithSize(t, len(cands))
		for i, c := range cands {
			out.SetMapIndex(reflect.ValueOf(c.name).Convert(t.Key()), beanValue(beans[i], t.Elem()))
		}
		return out.Interface(), names, true, nil
	}

	order := sortCandidates(cands, beans)
	out := reflect.MakeSlice(t, 0, len(cands))
	sorted := make([]string, 0, len(cands))
	for _, i := range order {
		out = reflect.Append(out, beanValue(beans[i], t.Elem()))
		sorted = append(sorted, cands[i].name)
	}
	return out.Interface(), sorted, true, nil
}

func beanValue(bean any, t reflect.Type) reflect.Value {
	if bean == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(bean)
}

// sortCandidates orders collection elements: primary beans first, then by
// priority or Ordered value, then in registration order.
func sortCandidates(cands []candidate, beans []any) []int {
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	order := func(i int) (int, bool) {
		if cands[i].prio != nil {
			return *cands[i].prio, true
		}
		if o, ok := beans[i].(Ordered); ok {
			return o.Order(), true
		}
		return 0, false
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := cands[idx[a]], cands[idx[b]]
		if ca.primary != cb.primary {
			return ca.primary
		}
		oa, hasA := order(idx[a])
		ob, hasB := order(idx[b])
		switch {
		case hasA && hasB:
			return oa < ob
		case hasA != hasB:
			return hasA
		}
		return false
	})
	return idx
}

// findCandidates returns the autowire candidates for typ, excluding beanName
// itself and beans produced by it.
func (n *Nasc) findCandidates(cc *creation, beanName string, typ reflect.Type, qualifier string) []candidate {
	var out []candidate
	for _, name := range n.beanNamesIncludingAncestors(cc, typ) {
		base := strings.TrimLeft(name, FactoryBeanPrefix)
		if n.isSelfReference(beanName, base) {
			continue
		}
		c := candidate{name: name}
		if n.defs.Contains(base) {
			mbd, err := n.defs.Merged(base)
			if err != nil || !mbd.IsAutowireCandidate() {
				continue
			}
			c.mbd = mbd
			c.primary = mbd.Primary
			c.prio = mbd.Priority
		}
		if qualifier != "" && !n.matchesQualifier(base, c.mbd, qualifier) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (n *Nasc) isSelfReference(beanName, candidate string) bool {
	if beanName == "" {
		return false
	}
	if candidate == beanName {
		return true
	}
	if n.defs.Contains(candidate) {
		if mbd, err := n.defs.Merged(candidate); err == nil && mbd.FactoryBean != "" {
			return n.transformedBeanName(mbd.FactoryBean) == beanName
		}
	}
	return false
}

func (n *Nasc) matchesQualifier(name string, mbd *registry.MergedDefinition, qualifier string) bool {
	if name == qualifier || (mbd != nil && mbd.HasQualifier(qualifier)) {
		return true
	}
	for _, alias := range n.defs.Aliases(name) {
		if alias == qualifier {
			return true
		}
	}
	return false
}

// determineAutowireCandidate picks one of several candidates: the only
// primary bean, then the one with the highest priority, then the one whose
// name matches the injection point.
func (n *Nasc) determineAutowireCandidate(cands []candidate, desc DependencyDescriptor) (candidate, error) {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	ambiguous := &AmbiguousDependencyError{Type: desc.Type, Candidates: names}

	var primary []candidate
	for _, c := range cands {
		if c.primary {
			primary = append(primary, c)
		}
	}
	switch len(primary) {
	case 1:
		return primary[0], nil
	case 0:
	default:
		return candidate{}, ambiguous
	}

	var best []candidate
	for _, c := range cands {
		if c.prio == nil {
			continue
		}
		switch {
		case len(best) == 0 || *c.prio < *best[0].prio:
			best = []candidate{c}
		case *c.prio == *best[0].prio:
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0], nil
	}
	if len(best) > 1 {
		return candidate{}, ambiguous
	}

	if desc.Name != "" {
		for _, c := range cands {
			base := strings.TrimLeft(c.name, FactoryBeanPrefix)
			if n.matchesQualifier(base, nil, desc.Name) {
				return c, nil
			}
		}
	}
	return candidate{}, ambiguous
}

// unsatisfiedNonSimpleProperties lists writable properties that have no
// configured value, are still zero, and can hold a bean.
func unsatisfiedNonSimpleProperties(pa PropertyAccessor, pvs *registry.PropertyValues) []string {
	var out []string
	for _, name := range pa.PropertyNames() {
		t, ok := pa.PropertyType(name)
		if !ok || isSimpleType(t) || t == anyType {
			continue
		}
		if pvs.Contains(name) || !isUnset(pa, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// autowireByName fills unset properties whose names match bean names.
func (n *Nasc) autowireByName(cc *creation, beanName string, pa PropertyAccessor, pvs *registry.PropertyValues) error {
	for _, prop := range unsatisfiedNonSimpleProperties(pa, pvs) {
		if !n.ContainsBean(prop) {
			n.log.Trace().Str("bean", beanName).Str("property", prop).Msg("not autowiring by name: no matching bean")
			continue
		}
		bean, err := n.doGetBean(cc, prop, nil, nil)
		if err != nil {
			return &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: "property " + prop, Cause: err}
		}
		pvs.Set(prop, bean)
		n.singletons.registerDependent(n.transformedBeanName(prop), beanName)
	}
	return nil
}

// autowireByType fills unset properties with the bean matching their type.
// Slice and map properties receive every matching bean.
func (n *Nasc) autowireByType(cc *creation, beanName string, pa PropertyAccessor, pvs *registry.PropertyValues) error {
	for _, prop := range unsatisfiedNonSimpleProperties(pa, pvs) {
		t, _ := pa.PropertyType(prop)
		value, names, err := n.resolveDependency(cc, beanName, DependencyDescriptor{Type: t, Name: prop})
		if err != nil {
			return &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: "property " + prop, Cause: err}
		}
		if value == nil {
			continue
		}
		pvs.Set(prop, value)
		for _, used := range names {
			n.singletons.registerDependent(n.transformedBeanName(used), beanName)
		}
	}
	return nil
}

// checkDependencies fails when a property covered by the definition's
// dependency check mode is still unset.
func checkDependencies(beanName string, mbd *registry.MergedDefinition, pa PropertyAccessor, pvs *registry.PropertyValues) error {
	mode := mbd.DependencyCheck
	for _, name := range pa.PropertyNames() {
		if pvs.Contains(name) || !isUnset(pa, name) {
			continue
		}
		t, _ := pa.PropertyType(name)
		simple := isSimpleType(t)
		if mode == registry.DependencyCheckAll ||
			(mode == registry.DependencyCheckSimple && simple) ||
			(mode == registry.DependencyCheckObjects && !simple) {
			return &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: "property " + name,
				Cause: fmt.Errorf("set this property value or disable dependency checking for this bean")}
		}
	}
	return nil
}
