package loader

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toutaio/toutago-nasc-beans/registry"
)

func TestTypeRegistry_Register(t *testing.T) {
	types := NewTypeRegistry()
	serverType := reflect.TypeOf(&server{})

	require.NoError(t, types.Register("app.Server", serverType, registry.Ctor(newServer, "addr")))
	require.NoError(t, types.Register("app.Clock", reflect.TypeOf(&clock{})))

	typ, ctors, ok := types.Lookup("app.Server")
	require.True(t, ok)
	assert.Equal(t, serverType, typ)
	require.Len(t, ctors, 1)

	ctors[0] = registry.Constructor{}
	_, again, _ := types.Lookup("app.Server")
	assert.NotNil(t, again[0].Fn, "lookups return a copy")

	assert.Equal(t, []string{"app.Clock", "app.Server"}, types.Names())
}

func TestTypeRegistry_RegisterErrors(t *testing.T) {
	types := NewTypeRegistry()
	require.NoError(t, types.Register("app.Clock", reflect.TypeOf(&clock{})))

	assert.Error(t, types.Register("", reflect.TypeOf(&clock{})))
	assert.Error(t, types.Register("app.Nil", nil))
	assert.Error(t, types.Register("app.Bad", reflect.TypeOf(&clock{}), registry.Ctor("not a func")))
	assert.ErrorContains(t, types.Register("app.Clock", reflect.TypeOf(&clock{})), "already registered")
}

func TestTypeRegistry_Builtins(t *testing.T) {
	types := NewTypeRegistry()

	tests := map[string]reflect.Type{
		"string":   reflect.TypeOf(""),
		"int":      reflect.TypeOf(0),
		"duration": reflect.TypeOf(time.Duration(0)),
		"time":     reflect.TypeOf(time.Time{}),
	}
	for name, want := range tests {
		typ, ctors, ok := types.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, typ, name)
		assert.Nil(t, ctors, name)
	}

	_, _, ok := types.Lookup("app.Unknown")
	assert.False(t, ok)
	assert.Empty(t, types.Names(), "builtins are not listed")
}

func TestTypeRegistry_Factories(t *testing.T) {
	types := NewTypeRegistry()

	assert.Error(t, types.RegisterFactory("", registry.Func("Remote", newRemoteServer)))
	assert.Error(t, types.RegisterFactory("servers"))
	assert.Error(t, types.RegisterFactory("servers", registry.Func("Bad", 42)))

	require.NoError(t, types.RegisterFactory("servers", registry.Func("Remote", newRemoteServer, "addr", "port")))
	require.NoError(t, types.RegisterFactory("servers", registry.Func("Local", newServer, "addr")))

	fns, ok := types.Factory("servers")
	require.True(t, ok)
	require.Len(t, fns, 2)
	assert.Equal(t, "Remote", fns[0].Name)
	assert.Equal(t, "Local", fns[1].Name)

	_, ok = types.Factory("missing")
	assert.False(t, ok)
}
