package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeChainLookup(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)

	outer := &UtilEntity{Name: "outer"}
	parent.Set("x", outer)

	got, err := child.Get("x")
	require.NoError(t, err)
	assert.Same(t, outer, got)

	assert.True(t, child.Contains("x"))
	assert.False(t, child.ContainsLocal("x"))

	_, err = child.GetLocal("x")
	assert.ErrorIs(t, err, ErrNameNotFound)

	_, err = child.Get("missing")
	assert.ErrorIs(t, err, ErrNameNotFound)
}

func TestScopeShadowing(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)

	outer := &UtilEntity{Name: "outer"}
	inner := &UtilEntity{Name: "inner"}
	parent.Set("x", outer)
	child.Set("x", inner)

	got, err := child.Get("x")
	require.NoError(t, err)
	assert.Same(t, inner, got)

	got, err = parent.Get("x")
	require.NoError(t, err)
	assert.Same(t, outer, got)
}

func TestScopeInsertionOrder(t *testing.T) {
	s := NewScope(nil)
	s.Set("c", &UtilEntity{Name: "c"})
	s.Set("a", &UtilEntity{Name: "a"})
	s.Set("b", &UtilEntity{Name: "b"})

	assert.Equal(t, []string{"c", "a", "b"}, s.Names())

	// Overwriting keeps the original position.
	s.Set("a", &UtilEntity{Name: "a2"})
	assert.Equal(t, []string{"c", "a", "b"}, s.Names())

	var visited []string
	s.Each(func(name string, _ Value) { visited = append(visited, name) })
	assert.Equal(t, []string{"c", "a", "b"}, visited)
}

func TestScopeInverse(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)

	v := &UtilEntity{Name: "v"}
	parent.Set("thing", v)

	name, err := child.ForValue(v, true)
	require.NoError(t, err)
	assert.Equal(t, "thing", name)

	_, err = child.ForValue(v, false)
	assert.ErrorIs(t, err, ErrValueNotFound)

	// Overwriting a name drops the old value from the inverse.
	replacement := &UtilEntity{Name: "r"}
	parent.Set("thing", replacement)
	_, err = parent.ForValue(v, false)
	assert.ErrorIs(t, err, ErrValueNotFound)
}

func TestScopeDelete(t *testing.T) {
	s := NewScope(nil)
	v := &UtilEntity{Name: "v"}
	s.Set("a", v)
	s.Set("b", &UtilEntity{Name: "b"})

	s.Delete("a")
	assert.False(t, s.Contains("a"))
	assert.Equal(t, []string{"b"}, s.Names())
	_, err := s.ForValue(v, false)
	assert.ErrorIs(t, err, ErrValueNotFound)

	// Deleting an absent name is a no-op.
	s.Delete("a")
	assert.Equal(t, 1, s.Len())
}

func TestScopeGetOrCreate(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)

	calls := 0
	factory := func(name string) Value {
		calls++
		return &UtilEntity{Name: name}
	}

	first := child.GetOrCreate("x", factory)
	second := child.GetOrCreate("x", factory)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	// A parent hit suppresses creation too.
	parent.Set("y", &UtilEntity{Name: "y"})
	got := child.GetOrCreate("y", factory)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "y", got.(*UtilEntity).Name)
	assert.False(t, child.ContainsLocal("y"))
}
