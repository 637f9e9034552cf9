package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	X int
	Y string
}

var widgetType = reflect.TypeOf(&widget{})

func TestNew(t *testing.T) {
	reg := New()
	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Count())
	assert.False(t, reg.AllowOverriding())
}

func TestRegister_Success(t *testing.T) {
	reg := New()
	def := &BeanDefinition{Type: widgetType}

	require.NoError(t, reg.Register("widget", def))

	assert.True(t, reg.Contains("widget"))
	got, err := reg.Get("widget")
	require.NoError(t, err)
	assert.Same(t, def, got)
}

func TestRegister_InvalidInput(t *testing.T) {
	reg := New()

	var invalid *InvalidDefinitionError
	assert.ErrorAs(t, reg.Register("", &BeanDefinition{}), &invalid)
	assert.ErrorAs(t, reg.Register("x", nil), &invalid)
	assert.ErrorAs(t, reg.Register("x", &BeanDefinition{Constructors: []Constructor{{Fn: 42}}}), &invalid)
}

func TestRegister_Duplicate(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("widget", &BeanDefinition{Type: widgetType}))

	err := reg.Register("widget", &BeanDefinition{Type: widgetType})
	var dup *AlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "widget", dup.Name)
}

func TestRegister_OverridingResetsMergedState(t *testing.T) {
	reg := New()
	reg.SetAllowOverriding(true)

	var reset []string
	reg.OnReset(func(name string) { reset = append(reset, name) })

	require.NoError(t, reg.Register("base", &BeanDefinition{Abstract: true, Properties: NewProperties().Set("y", "one")}))
	require.NoError(t, reg.Register("child", &BeanDefinition{Parent: "base", Type: widgetType}))

	before, err := reg.Merged("child")
	require.NoError(t, err)
	v, _ := before.Properties.Get("y")
	assert.Equal(t, "one", v)

	require.NoError(t, reg.Register("base", &BeanDefinition{Abstract: true, Properties: NewProperties().Set("y", "two")}))
	assert.Equal(t, []string{"base", "child"}, reset)

	after, err := reg.Merged("child")
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	v, _ = after.Properties.Get("y")
	assert.Equal(t, "two", v)

	assert.Equal(t, []string{"base", "child"}, reg.Names(), "overriding keeps the registration position")
}

func TestRemove(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("a", &BeanDefinition{Type: widgetType}))
	require.NoError(t, reg.Register("b", &BeanDefinition{Type: widgetType}))

	require.NoError(t, reg.Remove("a"))
	assert.False(t, reg.Contains("a"))
	assert.Equal(t, []string{"b"}, reg.Names())

	var notFound *DefinitionNotFoundError
	assert.ErrorAs(t, reg.Remove("a"), &notFound)
}

func TestNames_RegistrationOrder(t *testing.T) {
	reg := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(name, &BeanDefinition{Type: widgetType}))
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, reg.Names())
	assert.Equal(t, 3, reg.Count())
}

func TestAliases(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("widget", &BeanDefinition{Type: widgetType}))
	require.NoError(t, reg.RegisterAlias("widget", "w"))
	require.NoError(t, reg.RegisterAlias("w", "ww"))

	assert.True(t, reg.IsAlias("w"))
	assert.Equal(t, "widget", reg.Canonical("ww"))
	assert.Equal(t, "widget", reg.Canonical("widget"))
	assert.Equal(t, []string{"w", "ww"}, reg.Aliases("widget"))

	// Registering the same alias again is a no-op.
	require.NoError(t, reg.RegisterAlias("widget", "w"))

	require.NoError(t, reg.RemoveAlias("ww"))
	assert.False(t, reg.IsAlias("ww"))
	assert.Error(t, reg.RemoveAlias("ww"))
}

func TestAliases_Cycle(t *testing.T) {
	reg := New()
	require.NoError(t, reg.RegisterAlias("a", "b"))
	require.NoError(t, reg.RegisterAlias("b", "c"))

	var cycle *AliasCycleError
	assert.ErrorAs(t, reg.RegisterAlias("c", "a"), &cycle)
}

func TestAliases_TakenByOtherBean(t *testing.T) {
	reg := New()
	require.NoError(t, reg.RegisterAlias("a", "x"))

	var dup *AlreadyRegisteredError
	require.ErrorAs(t, reg.RegisterAlias("b", "x"), &dup)
	assert.Equal(t, "a", dup.AliasOf)

	reg.SetAllowOverriding(true)
	require.NoError(t, reg.RegisterAlias("b", "x"))
	assert.Equal(t, "b", reg.Canonical("x"))
}

func TestMerged_InheritsAndOverrides(t *testing.T) {
	reg := New()
	lazy := true
	require.NoError(t, reg.Register("base", &BeanDefinition{
		Abstract:   true,
		Scope:      ScopePrototype,
		Lazy:       &lazy,
		InitMethod: "Start",
		Properties: NewProperties().Set("x", 1).Set("y", "from-base"),
	}))
	require.NoError(t, reg.Register("child", &BeanDefinition{
		Parent:     "base",
		Type:       widgetType,
		Properties: NewProperties().Set("x", 2),
	}))

	mbd, err := reg.Merged("child")
	require.NoError(t, err)

	assert.Equal(t, widgetType, mbd.Type)
	assert.False(t, mbd.Abstract)
	assert.True(t, mbd.IsPrototype())
	assert.True(t, mbd.IsLazy())
	assert.Equal(t, "Start", mbd.InitMethod)
	assert.Empty(t, mbd.Parent)

	x, _ := mbd.Properties.Get("x")
	y, _ := mbd.Properties.Get("y")
	assert.Equal(t, 2, x)
	assert.Equal(t, "from-base", y)

	again, err := reg.Merged("child")
	require.NoError(t, err)
	assert.Same(t, mbd, again, "merged definitions are cached")
}

func TestMerged_DefaultScopeIsSingleton(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("w", &BeanDefinition{Type: widgetType}))

	mbd, err := reg.Merged("w")
	require.NoError(t, err)
	assert.Equal(t, ScopeSingleton, mbd.Scope)
}

func TestMerged_MergesCollections(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("base", &BeanDefinition{
		Abstract: true,
		Properties: NewProperties().
			Set("tags", List{Items: []any{"a"}}).
			Set("labels", Map{Entries: map[string]any{"k1": "v1", "k2": "v2"}}),
	}))
	require.NoError(t, reg.Register("child", &BeanDefinition{
		Parent: "base",
		Type:   widgetType,
		Properties: NewProperties().
			Set("tags", List{Items: []any{"b"}, Merge: true}).
			Set("labels", Map{Entries: map[string]any{"k2": "override"}, Merge: true}),
	}))

	mbd, err := reg.Merged("child")
	require.NoError(t, err)

	tags, _ := mbd.Properties.Get("tags")
	assert.Equal(t, []any{"a", "b"}, tags.(List).Items)

	labels, _ := mbd.Properties.Get("labels")
	assert.Equal(t, map[string]any{"k1": "v1", "k2": "override"}, labels.(Map).Entries)
}

func TestMerged_ChildWithoutArguments(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("base", &BeanDefinition{
		Abstract:        true,
		Scope:           ScopePrototype,
		ConstructorArgs: NewConstructorArgs().Generic("from-base"),
		Properties:      NewProperties().Set("y", "from-base"),
	}))
	require.NoError(t, reg.Register("child", &BeanDefinition{Parent: "base", Type: widgetType}))

	mbd, err := reg.Merged("child")
	require.NoError(t, err)

	assert.True(t, mbd.IsPrototype())
	assert.Equal(t, 1, mbd.ConstructorArgs.Len())
	y, ok := mbd.Properties.Get("y")
	require.True(t, ok)
	assert.Equal(t, "from-base", y)
}

func TestMerged_ParentCycle(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("a", &BeanDefinition{Parent: "b"}))
	require.NoError(t, reg.Register("b", &BeanDefinition{Parent: "a"}))

	_, err := reg.Merged("a")
	var cycle *ParentCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Chain)
}

func TestMerged_MissingParent(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("child", &BeanDefinition{Parent: "nope"}))

	_, err := reg.Merged("child")
	var invalid *InvalidDefinitionError
	require.ErrorAs(t, err, &invalid)
	var notFound *DefinitionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMerged_ParentThroughLookup(t *testing.T) {
	parent := New()
	require.NoError(t, parent.Register("svc", &BeanDefinition{
		Type:       widgetType,
		Properties: NewProperties().Set("y", "parent"),
	}))

	child := New()
	child.SetParentLookup(parent.Merged)
	require.NoError(t, child.Register("svc", &BeanDefinition{
		Parent:     "svc",
		Properties: NewProperties().Set("x", 7),
	}))

	mbd, err := child.Merged("svc")
	require.NoError(t, err)
	y, _ := mbd.Properties.Get("y")
	x, _ := mbd.Properties.Get("x")
	assert.Equal(t, "parent", y)
	assert.Equal(t, 7, x)
}

func TestMergedWithin_InheritsContainerScope(t *testing.T) {
	reg := New()
	outer := &MergedDefinition{BeanDefinition: BeanDefinition{Scope: ScopePrototype}}

	mbd, err := reg.MergedWithin("(inner)", &BeanDefinition{Type: widgetType}, outer)
	require.NoError(t, err)
	assert.True(t, mbd.IsPrototype())

	_, err = reg.Merged("(inner)")
	assert.Error(t, err, "inner definitions are not cached or registered")
}

func TestMergedDefinition_PostProcessOnce(t *testing.T) {
	mbd := newMerged(&BeanDefinition{})

	calls := 0
	fail := errors.New("boom")
	assert.ErrorIs(t, mbd.PostProcessOnce(func() error { calls++; return fail }), fail)
	assert.NoError(t, mbd.PostProcessOnce(func() error { calls++; return nil }))
	assert.NoError(t, mbd.PostProcessOnce(func() error { calls++; return nil }))
	assert.Equal(t, 2, calls)

	mbd.CacheResolution("decision")
	assert.Equal(t, "decision", mbd.Resolution())
}

func TestConstructorArgs_Lookup(t *testing.T) {
	args := NewConstructorArgs().
		Index(0, "zero").
		Named("port", 8080).
		Generic("generic")

	used := map[int]bool{}
	arg, ok := args.Lookup(0, reflect.TypeOf(""), "", used)
	require.True(t, ok)
	assert.Equal(t, "zero", arg.Value)

	arg, ok = args.Lookup(1, reflect.TypeOf(0), "port", used)
	require.True(t, ok)
	assert.Equal(t, 8080, arg.Value)

	arg, ok = args.Lookup(2, reflect.TypeOf(""), "", used)
	require.True(t, ok)
	assert.Equal(t, "generic", arg.Value)

	_, ok = args.Lookup(3, reflect.TypeOf(""), "", used)
	assert.False(t, ok, "generic arguments are consumed once")

	assert.Equal(t, 3, args.Len())
	assert.Equal(t, []int{0}, args.IndexedPositions())
}

func TestConstructorArgs_NilSafe(t *testing.T) {
	var args *ConstructorArgs
	assert.True(t, args.IsEmpty())
	assert.Equal(t, 0, args.Len())
	_, ok := args.Lookup(0, nil, "", nil)
	assert.False(t, ok)
}

func TestPropertyValues(t *testing.T) {
	pvs := NewProperties().Set("a", 1).Set("b", 2).Set("a", 3)

	assert.Equal(t, 2, pvs.Len())
	assert.Equal(t, []PropertyValue{{Name: "a", Value: 3}, {Name: "b", Value: 2}}, pvs.All())

	cp := pvs.Copy()
	cp.Remove("a")
	assert.True(t, pvs.Contains("a"))
	assert.False(t, cp.Contains("a"))

	var empty *PropertyValues
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Contains("a"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     *BeanDefinition
		wantErr bool
	}{
		{"plain", &BeanDefinition{Type: widgetType}, false},
		{"factory method with overrides", &BeanDefinition{FactoryMethod: "New", MethodOverrides: []MethodOverride{LookupOverride{Field: "F"}}}, true},
		{"override without field", &BeanDefinition{MethodOverrides: []MethodOverride{LookupOverride{}}}, true},
		{"non-func factory", &BeanDefinition{FactoryFuncs: []Constructor{{Fn: "x"}}}, true},
		{"factory bean without method", &BeanDefinition{FactoryBean: "f", FactoryFuncs: []Constructor{Func("x", func() int { return 1 })}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("bean%d", i)
			assert.NoError(t, reg.Register(name, &BeanDefinition{Type: widgetType}))
			_, err := reg.Merged(name)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, reg.Count())
}
