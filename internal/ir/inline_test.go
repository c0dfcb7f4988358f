package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCallee defines a function with (i32 byval, i32 byref) -> i32 whose
// body routes both parameters through a local before returning.
func buildCallee(t *testing.T, top *TopLevel) (*IRFunction, *Variable, *Variable, *Variable) {
	t.Helper()
	callee, err := top.DefineFunction("callee")
	require.NoError(t, err)

	byval, err := callee.AddParameter(I32, ByValue)
	require.NoError(t, err)
	byref, err := callee.AddParameter(I32, ByRef)
	require.NoError(t, err)
	ret, err := callee.AddReturn(I32)
	require.NoError(t, err)
	tmp, err := callee.CreateVar("tmp", I32)
	require.NoError(t, err)

	body := callee.CreateBlock("body")
	require.NoError(t, body.Add(NewAssign(tmp, byval)))
	require.NoError(t, body.Add(NewAssign(ret, byref)))
	require.NoError(t, body.Add(NewReturn()))
	require.NoError(t, callee.End())
	return callee, byval, byref, ret
}

func TestInlineMapsArgumentsAndBlocks(t *testing.T) {
	top := NewTopLevel()
	callee, _, _, _ := buildCallee(t, top)

	caller, err := top.DefineFunction("caller")
	require.NoError(t, err)
	x, err := caller.CreateVar("x", I32)
	require.NoError(t, err)
	y, err := caller.CreateVar("y", I32)
	require.NoError(t, err)
	dst, err := caller.CreateVar("dst", I32)
	require.NoError(t, err)

	entry, exit, err := callee.InlineInto(caller, []Value{x, y}, []*Variable{dst})
	require.NoError(t, err)

	// The mapped entry is the callee's first user block recreated in the
	// caller; the mapped exit stands in for the callee's exit node.
	assert.Equal(t, "body", entry.Name())
	assert.Same(t, caller, entry.Function())
	assert.Equal(t, "0ret0", exit.Name())

	// The by-value argument got an independent copy.
	copyVar, ok := caller.Lookup("x_copy").(*Variable)
	require.True(t, ok)

	insns := entry.Insns()
	require.Len(t, insns, 4)
	assert.Equal(t, InsnAssign, insns[0].Kind)
	assert.Same(t, Value(copyVar), insns[0].Vals[0])
	assert.Same(t, Value(x), insns[0].Vals[1])

	// tmp was re-defined in the caller through the preamble replay.
	newTmp, ok := caller.Lookup("tmp").(*Variable)
	require.True(t, ok)
	assert.Same(t, Value(newTmp), insns[1].Vals[0])
	assert.Same(t, Value(copyVar), insns[1].Vals[1])

	// The by-reference argument aliases the caller's storage directly.
	assert.Same(t, Value(dst), insns[2].Vals[0])
	assert.Same(t, Value(y), insns[2].Vals[1])

	// The terminating branch funnels into the mapped exit.
	assert.Equal(t, InsnBranch, insns[3].Kind)
	assert.Same(t, Value(exit), insns[3].Vals[0])
}

func TestInlineLiteralArgumentNeedsNoCopy(t *testing.T) {
	top := NewTopLevel()
	callee, _, _, _ := buildCallee(t, top)

	caller, err := top.DefineFunction("caller")
	require.NoError(t, err)
	y, err := caller.CreateVar("y", I32)
	require.NoError(t, err)
	dst, err := caller.CreateVar("dst", I32)
	require.NoError(t, err)

	entry, _, err := callee.InlineInto(caller, []Value{IntLit(7), y}, []*Variable{dst})
	require.NoError(t, err)

	// No copy variable and no copy assignment: the literal substitutes
	// straight into the body.
	assert.Nil(t, caller.Lookup("x_copy"))
	insns := entry.Insns()
	require.Len(t, insns, 3)
	assert.Equal(t, IntLit(7), insns[0].Vals[1])
}

func TestInlineLiteralOnByRefParameterFails(t *testing.T) {
	top := NewTopLevel()
	callee, _, _, _ := buildCallee(t, top)

	caller, err := top.DefineFunction("caller")
	require.NoError(t, err)
	dst, err := caller.CreateVar("dst", I32)
	require.NoError(t, err)

	_, _, err = callee.InlineInto(caller, []Value{IntLit(1), IntLit(2)}, []*Variable{dst})
	assert.ErrorIs(t, err, ErrBadArgs)
}

func TestInlineDiscardedReturn(t *testing.T) {
	top := NewTopLevel()
	callee, _, _, _ := buildCallee(t, top)

	caller, err := top.DefineFunction("caller")
	require.NoError(t, err)
	x, err := caller.CreateVar("x", I32)
	require.NoError(t, err)
	y, err := caller.CreateVar("y", I32)
	require.NoError(t, err)

	entry, _, err := callee.InlineInto(caller, []Value{x, y}, []*Variable{nil})
	require.NoError(t, err)

	insns := entry.Insns()
	require.Len(t, insns, 4)
	// The assignment into the discarded return renders to nothing later;
	// here it just carries a nil destination.
	assert.Equal(t, InsnAssign, insns[2].Kind)
	assert.Nil(t, insns[2].Vals[0])
}

func TestInlineArgumentValidation(t *testing.T) {
	top := NewTopLevel()
	callee, _, _, _ := buildCallee(t, top)

	caller, err := top.DefineFunction("caller")
	require.NoError(t, err)
	x, err := caller.CreateVar("x", I32)
	require.NoError(t, err)
	q, err := caller.CreateVar("q", Q10)
	require.NoError(t, err)
	dst, err := caller.CreateVar("dst", I32)
	require.NoError(t, err)

	// Arity mismatch.
	_, _, err = callee.InlineInto(caller, []Value{x}, []*Variable{dst})
	assert.ErrorIs(t, err, ErrBadArgs)

	// Type mismatch.
	_, _, err = callee.InlineInto(caller, []Value{x, q}, []*Variable{dst})
	assert.ErrorIs(t, err, ErrBadArgs)

	// Return destination type mismatch.
	_, _, err = callee.InlineInto(caller, []Value{x, x}, []*Variable{q})
	assert.ErrorIs(t, err, ErrBadArgs)
}

func TestInlineRejectsUnfinishedAndFinalized(t *testing.T) {
	top := NewTopLevel()

	unfinished, err := top.DefineFunction("unfinished")
	require.NoError(t, err)
	unfinished.CreateBlock("body")

	caller, err := top.DefineFunction("caller")
	require.NoError(t, err)

	_, _, err = unfinished.InlineInto(caller, nil, nil)
	assert.ErrorIs(t, err, ErrFunctionState)

	callee, err := top.DefineFunction("done")
	require.NoError(t, err)
	cb := callee.CreateBlock("body")
	require.NoError(t, cb.Add(NewReturn()))
	require.NoError(t, callee.End())
	require.NoError(t, callee.VariablesFinalized())

	_, _, err = callee.InlineInto(caller, nil, nil)
	assert.ErrorIs(t, err, ErrFunctionState)
}
