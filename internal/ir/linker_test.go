package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSingleUnitPassesThrough(t *testing.T) {
	top := NewTopLevel()
	fn, err := top.DefineFunction("f")
	require.NoError(t, err)
	finishFunction(t, fn)
	require.NoError(t, top.End())

	merged, err := Link(top)
	require.NoError(t, err)
	assert.Same(t, top, merged)
}

func TestLinkRejectsNothing(t *testing.T) {
	_, err := Link()
	assert.Error(t, err)
}

func TestLinkRejectsUnfinishedUnit(t *testing.T) {
	a := NewTopLevel()
	require.NoError(t, a.End())
	b := NewTopLevel()

	_, err := Link(a, b)
	assert.ErrorIs(t, err, ErrFunctionState)
}

func TestLinkResolvesExternAgainstDefinition(t *testing.T) {
	lib := NewTopLevel()
	helper, err := lib.DefineFunction("helper")
	require.NoError(t, err)
	finishFunction(t, helper)
	require.NoError(t, lib.End())

	app := NewTopLevel()
	app.IncludeFrom(lib)
	stub, err := app.LookupFunc("helper")
	require.NoError(t, err)
	require.IsType(t, &ExternFunction{}, stub)

	main, err := app.DefineFunction("main")
	require.NoError(t, err)
	body := main.CreateBlock("body")
	require.NoError(t, body.Add(NewCall(stub)))
	require.NoError(t, body.Add(NewReturn()))
	require.NoError(t, main.End())
	require.NoError(t, app.End())

	merged, err := Link(lib, app)
	require.NoError(t, err)
	assert.True(t, merged.Finished())

	// Exactly one definition of helper survives, and the call site points
	// at it rather than the stub.
	got, err := merged.LookupFunc("helper")
	require.NoError(t, err)
	assert.Same(t, VisibleFunction(helper), got)
	assert.Same(t, Value(helper), body.Insns()[0].Vals[0])

	// The merged unit can be written out: no extern reaches generation.
	w := newRecordingWriter()
	require.NoError(t, merged.Writeout(w))
	assert.Contains(t, w.funcs["main/body"], "function helper")
}

func TestLinkUnifiesUnresolvedExterns(t *testing.T) {
	mkUser := func(name string) *TopLevel {
		top := NewTopLevel()
		stub := NewExternFunction("missing", nil, nil)
		require.NoError(t, top.Store("missing", stub))
		fn, err := top.DefineFunction(name)
		require.NoError(t, err)
		body := fn.CreateBlock("body")
		require.NoError(t, body.Add(NewCall(stub)))
		require.NoError(t, body.Add(NewReturn()))
		require.NoError(t, fn.End())
		require.NoError(t, top.End())
		return top
	}

	a := mkUser("a")
	b := mkUser("b")
	merged, err := Link(a, b)
	require.NoError(t, err)

	// Both call sites share one representative stub.
	got, err := merged.LookupFunc("missing")
	require.NoError(t, err)
	rep, ok := got.(*ExternFunction)
	require.True(t, ok)

	fnA, err := merged.LookupFunc("a")
	require.NoError(t, err)
	fnB, err := merged.LookupFunc("b")
	require.NoError(t, err)
	callA := fnA.(*IRFunction).Blocks()[0].Insns()[0]
	callB := fnB.(*IRFunction).Blocks()[0].Insns()[0]
	assert.Same(t, Value(rep), callA.Vals[0])
	assert.Same(t, Value(rep), callB.Vals[0])

	// Writing out an unresolved import is still an error.
	err = merged.Writeout(newRecordingWriter())
	assert.ErrorIs(t, err, ErrUnlinkedExtern)
}

func TestLinkSignatureMismatch(t *testing.T) {
	lib := NewTopLevel()
	helper, err := lib.DefineFunction("helper")
	require.NoError(t, err)
	_, err = helper.AddParameter(I32, ByValue)
	require.NoError(t, err)
	finishFunction(t, helper)
	require.NoError(t, lib.End())

	app := NewTopLevel()
	stub := NewExternFunction("helper", nil, nil)
	require.NoError(t, app.Store("helper", stub))
	require.NoError(t, app.End())

	_, err = Link(lib, app)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestLinkDuplicateDefinition(t *testing.T) {
	mkUnit := func() *TopLevel {
		top := NewTopLevel()
		fn, err := top.DefineFunction("dup")
		require.NoError(t, err)
		finishFunction(t, fn)
		require.NoError(t, top.End())
		return top
	}

	_, err := Link(mkUnit(), mkUnit())
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestLinkMovesGlobalsUnderFreshNames(t *testing.T) {
	mkUnit := func() *TopLevel {
		top := NewTopLevel()
		_, err := top.CreateGlobal("counter", I32)
		require.NoError(t, err)
		require.NoError(t, top.End())
		return top
	}

	merged, err := Link(mkUnit(), mkUnit())
	require.NoError(t, err)

	// Both globals survive, the second under a uniquified name.
	assert.IsType(t, &Variable{}, merged.Lookup("counter"))
	assert.IsType(t, &Variable{}, merged.Lookup("counter0"))
}

func TestLinkConcatenatesPragmas(t *testing.T) {
	a := NewTopLevel()
	a.AddPragma("tag", "alpha")
	require.NoError(t, a.End())
	b := NewTopLevel()
	b.AddPragma("tag", "beta")
	require.NoError(t, b.End())

	merged, err := Link(a, b)
	require.NoError(t, err)
	require.Len(t, merged.Pragmas(), 2)
	assert.Equal(t, PragmaEntry{Key: "tag", Value: "alpha"}, merged.Pragmas()[0])
	assert.Equal(t, PragmaEntry{Key: "tag", Value: "beta"}, merged.Pragmas()[1])
}
