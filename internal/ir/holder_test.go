package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueNameSequence(t *testing.T) {
	top := NewTopLevel()

	assert.Equal(t, "tmp", top.UniqueName("tmp"))
	require.NoError(t, top.Store("tmp", &UtilEntity{Name: "tmp"}))

	assert.Equal(t, "tmp0", top.UniqueName("tmp"))
	require.NoError(t, top.Store("tmp0", &UtilEntity{Name: "tmp0"}))

	assert.Equal(t, "tmp1", top.UniqueName("tmp"))
}

func TestStoreRejectsDuplicates(t *testing.T) {
	top := NewTopLevel()
	require.NoError(t, top.Store("x", &UtilEntity{Name: "x"}))
	assert.ErrorIs(t, top.Store("x", &UtilEntity{Name: "x2"}), ErrDuplicateName)
}

func TestLookupReturnsNilWhenAbsent(t *testing.T) {
	top := NewTopLevel()
	assert.Nil(t, top.Lookup("nope"))

	v := &UtilEntity{Name: "v"}
	require.NoError(t, top.Store("v", v))
	assert.Same(t, Value(v), top.Lookup("v"))
}

func TestUniqueNameCrossesScopeChain(t *testing.T) {
	top := NewTopLevel()
	require.NoError(t, top.Store("x", &UtilEntity{Name: "x"}))

	fn, err := top.DefineFunction("f")
	require.NoError(t, err)

	// The unit-level name shadows into the function scope, so the hint
	// must skip it.
	assert.Equal(t, "x0", fn.UniqueName("x"))
}

func TestTransformScope(t *testing.T) {
	top := NewTopLevel()
	a := &UtilEntity{Name: "a"}
	b := &UtilEntity{Name: "b"}
	require.NoError(t, top.Store("a", a))
	require.NoError(t, top.Store("b", b))

	// Identity transform reports no change.
	changed := top.TransformScope(func(name string, v Value) (string, Value) {
		return name, v
	})
	assert.False(t, changed)

	// Renaming and deleting both count as changes.
	changed = top.TransformScope(func(name string, v Value) (string, Value) {
		switch name {
		case "a":
			return "renamed", v
		case "b":
			return "", nil
		}
		return name, v
	})
	assert.True(t, changed)

	assert.Nil(t, top.Lookup("a"))
	assert.Nil(t, top.Lookup("b"))
	assert.Same(t, Value(a), top.Lookup("renamed"))
}

func TestResetVarUsage(t *testing.T) {
	top := NewTopLevel()
	g, err := top.CreateGlobal("g", I32)
	require.NoError(t, err)

	g.Usage()
	g.Usage()
	require.Equal(t, 2, g.UseCount())

	top.ResetVarUsage()
	assert.Zero(t, g.UseCount())
}
