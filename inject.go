package nasc

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

// tagOptions represents parsed options from an inject struct tag.
type tagOptions struct {
	skip     bool
	optional bool
	name     string
}

// parseInjectTag parses an inject struct tag.
// Supported formats:
//   - `inject:""` - inject by type
//   - `inject:"optional"` - leave the field zero if nothing matches
//   - `inject:"name=foo"` - inject the bean named foo
//   - `inject:"optional,name=foo"` - combined options
//   - `inject:"-"` - never inject
func parseInjectTag(tag string) tagOptions {
	opts := tagOptions{}
	if tag == "-" {
		opts.skip = true
		return opts
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "optional":
			opts.optional = true
		case strings.HasPrefix(part, "name="):
			opts.name = strings.TrimPrefix(part, "name=")
		}
	}
	return opts
}

// AutoWire injects beans into the inject-tagged fields of an object that the
// factory did not create. instance must be a pointer to struct.
//
// Example:
//
//	type Handler struct {
//	    Repo   Repository `inject:""`
//	    Cache  Cache      `inject:"optional"`
//	    Audit  Logger     `inject:"name=auditLogger"`
//	}
//
//	h := &Handler{}
//	if err := factory.AutoWire(h); err != nil {
//	    return err
//	}
func (n *Nasc) AutoWire(instance any) error {
	if instance == nil {
		return fmt.Errorf("cannot autowire nil instance")
	}
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("autowire target must be a pointer to struct, got %T", instance)
	}
	return n.injectTaggedFields(newCreation(), "", instance, nil)
}

// injectTaggedFields resolves every inject-tagged field of bean that has no
// configured property value.
func (n *Nasc) injectTaggedFields(cc *creation, beanName string, bean any, pvs *registry.PropertyValues) error {
	v := reflect.ValueOf(bean)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	acc := &structAccessor{value: v.Elem(), props: n.reflection.properties(v.Elem().Type())}

	for _, p := range acc.props.list {
		if !p.tagged {
			continue
		}
		opts := parseInjectTag(p.inject)
		if opts.skip || pvs.Contains(p.name) {
			continue
		}

		value, used, err := n.resolveField(cc, beanName, p, opts)
		if err != nil {
			return &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: "field " + p.field, Cause: err}
		}
		if value == nil {
			continue
		}
		converted, err := convertValue(value, p.typ)
		if err != nil {
			return &UnsatisfiedDependencyError{Name: beanName, InjectionPoint: "field " + p.field, Cause: err}
		}
		if err := acc.SetProperty(p.name, converted.Interface()); err != nil {
			return err
		}
		if beanName != "" {
			for _, name := range used {
				n.singletons.registerDependent(n.transformedBeanName(name), beanName)
			}
		}
	}
	return nil
}

func (n *Nasc) resolveField(cc *creation, beanName string, p *propertyInfo, opts tagOptions) (any, []string, error) {
	if opts.name != "" {
		if !n.ContainsBean(opts.name) {
			if opts.optional {
				return nil, nil, nil
			}
			return nil, nil, &DefinitionNotFoundError{Name: opts.name}
		}
		bean, err := n.doGetBean(cc, opts.name, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		return bean, []string{opts.name}, nil
	}
	return n.resolveDependency(cc, beanName, DependencyDescriptor{
		Type:     p.typ,
		Name:     p.name,
		Required: !opts.optional,
	})
}
