package registry

// overrideFrom lays the child definition other over d. Scalar fields are
// taken from the child when set; properties and constructor arguments merge
// by key.
func (d *BeanDefinition) overrideFrom(other *BeanDefinition) {
	if other.Type != nil {
		d.Type = other.Type
	}
	if other.Scope != ScopeDefault {
		d.Scope = other.Scope
	}
	d.Abstract = other.Abstract
	if other.Lazy != nil {
		v := *other.Lazy
		d.Lazy = &v
	}
	if other.Autowire != AutowireDefault {
		d.Autowire = other.Autowire
	}
	if other.AutowireCandidate != nil {
		v := *other.AutowireCandidate
		d.AutowireCandidate = &v
	}
	d.Primary = other.Primary
	if other.Priority != nil {
		v := *other.Priority
		d.Priority = &v
	}
	for _, q := range other.Qualifiers {
		if !d.HasQualifier(q) {
			d.Qualifiers = append(d.Qualifiers, q)
		}
	}
	if other.DependencyCheck != DependencyCheckNone {
		d.DependencyCheck = other.DependencyCheck
	}
	if other.DependsOn != nil {
		d.DependsOn = cloneStrings(other.DependsOn)
	}
	if other.InitMethod != "" {
		d.InitMethod = other.InitMethod
	}
	if other.DestroyMethod != "" {
		d.DestroyMethod = other.DestroyMethod
	}
	if other.FactoryBean != "" {
		d.FactoryBean = other.FactoryBean
	}
	if other.FactoryMethod != "" {
		d.FactoryMethod = other.FactoryMethod
	}
	if len(other.FactoryFuncs) > 0 {
		d.FactoryFuncs = append([]Constructor(nil), other.FactoryFuncs...)
	}
	if len(other.Constructors) > 0 {
		d.Constructors = append([]Constructor(nil), other.Constructors...)
	}
	if other.Supplier != nil {
		d.Supplier = other.Supplier
	}
	if other.FactoryObjectType != nil {
		d.FactoryObjectType = other.FactoryObjectType
	}
	if other.Description != "" {
		d.Description = other.Description
	}
	d.Synthetic = d.Synthetic || other.Synthetic

	if d.ConstructorArgs == nil {
		d.ConstructorArgs = NewConstructorArgs()
	}
	d.ConstructorArgs.addAll(other.ConstructorArgs)

	if d.Properties == nil {
		d.Properties = NewProperties()
	}
	d.Properties.addAll(other.Properties)

	for _, o := range other.MethodOverrides {
		d.MethodOverrides = replaceOverride(d.MethodOverrides, o)
	}
}

func replaceOverride(list []MethodOverride, o MethodOverride) []MethodOverride {
	for i, have := range list {
		if have.FieldName() == o.FieldName() {
			list[i] = o
			return list
		}
	}
	return append(list, o)
}
