package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finishFunction gives fn a trivially terminated body and closes it.
func finishFunction(t *testing.T, fn *IRFunction) {
	t.Helper()
	b := fn.CreateBlock("body")
	require.NoError(t, b.Add(NewReturn()))
	require.NoError(t, fn.End())
}

func TestTopLevelSeedsUtilityEntities(t *testing.T) {
	top := NewTopLevel()
	assert.IsType(t, &UtilEntity{}, top.Lookup("pos_util"))
	assert.IsType(t, &UtilEntity{}, top.Lookup("_global_entity"))
}

func TestGetOrCreateFuncIsIdempotent(t *testing.T) {
	top := NewTopLevel()
	first := top.GetOrCreateFunc("f")
	second := top.GetOrCreateFunc("f")
	assert.Same(t, first, second)
}

func TestDefineFunctionPromotesExtern(t *testing.T) {
	lib := NewTopLevel()
	libFn, err := lib.DefineFunction("helper")
	require.NoError(t, err)
	_, err = libFn.AddParameter(I32, ByValue)
	require.NoError(t, err)
	finishFunction(t, libFn)

	app := NewTopLevel()
	app.IncludeFrom(lib)

	stub, err := app.LookupFunc("helper")
	require.NoError(t, err)
	require.IsType(t, &ExternFunction{}, stub)

	// A caller references the stub before the definition exists.
	caller, err := app.DefineFunction("main")
	require.NoError(t, err)
	cb := caller.CreateBlock("body")
	require.NoError(t, cb.Add(NewCall(stub)))
	require.NoError(t, cb.Add(NewReturn()))

	real, err := app.DefineFunction("helper")
	require.NoError(t, err)

	// The promotion must match the stub's signature expectation.
	_, err = real.AddParameter(I32, ByValue)
	require.NoError(t, err)
	finishFunction(t, real)

	// The call site was rewritten from the stub to the definition.
	assert.Same(t, Value(real), cb.Insns()[0].Vals[0])
}

func TestDefineFunctionPromotionChecksSignature(t *testing.T) {
	lib := NewTopLevel()
	libFn, err := lib.DefineFunction("helper")
	require.NoError(t, err)
	_, err = libFn.AddParameter(Q10, ByRef)
	require.NoError(t, err)
	finishFunction(t, libFn)

	app := NewTopLevel()
	app.IncludeFrom(lib)

	real, err := app.DefineFunction("helper")
	require.NoError(t, err)
	// The deferred expectation replays at End against the empty signature.
	finishFunctionExpectError(t, real, ErrSignature)
}

func finishFunctionExpectError(t *testing.T, fn *IRFunction, want error) {
	t.Helper()
	b := fn.CreateBlock("body")
	require.NoError(t, b.Add(NewReturn()))
	assert.ErrorIs(t, fn.End(), want)
}

func TestIncludeFromSkipsPrivateNames(t *testing.T) {
	lib := NewTopLevel()
	pub, err := lib.DefineFunction("public")
	require.NoError(t, err)
	finishFunction(t, pub)
	priv, err := lib.DefineFunction("__private")
	require.NoError(t, err)
	finishFunction(t, priv)

	app := NewTopLevel()
	app.IncludeFrom(lib)

	assert.NotNil(t, app.Lookup("public"))
	assert.Nil(t, app.Lookup("__private"))
}

func TestEndRequiresFinishedFunctions(t *testing.T) {
	top := NewTopLevel()
	fn, err := top.DefineFunction("f")
	require.NoError(t, err)
	fn.CreateBlock("body")

	err = top.End()
	assert.ErrorIs(t, err, ErrUnfinishedFunction)
	assert.False(t, top.Finished())
}

func TestCreateGlobalAndEvent(t *testing.T) {
	top := NewTopLevel()

	g, err := top.CreateGlobal("counter", I32)
	require.NoError(t, err)
	assert.Equal(t, RoleGlobal, g.Role)
	name, err := top.NameFor(g)
	require.NoError(t, err)
	assert.Equal(t, "counter", name)

	ev, err := top.CreateEvent("minecraft:tick")
	require.NoError(t, err)
	assert.Equal(t, "minecraft:tick", ev.Name)

	require.NoError(t, top.Preamble().Add(NewAddEventCondition(ev, "weather", "rain")))
	require.Len(t, ev.Conditions, 1)
	assert.Equal(t, EventCondition{Path: "weather", Value: "rain"}, ev.Conditions[0])
}

func TestEventHandlerRevokePolicy(t *testing.T) {
	top := NewTopLevel()
	tick, err := top.CreateEvent("minecraft:tick")
	require.NoError(t, err)
	death, err := top.CreateEvent("entity_death")
	require.NoError(t, err)

	tickFn, err := top.DefineFunction("on_tick")
	require.NoError(t, err)
	require.NoError(t, top.Preamble().Add(NewEventHandler(tickFn, tick)))
	// tick/load handlers re-fire on their own, no revoke needed.
	assert.Empty(t, tickFn.EntryBlock().Insns())

	deathFn, err := top.DefineFunction("on_death")
	require.NoError(t, err)
	require.NoError(t, top.Preamble().Add(NewEventHandler(deathFn, death)))
	entry := deathFn.EntryBlock().Insns()
	require.Len(t, entry, 1)
	assert.Equal(t, InsnRevokeEventAdvancement, entry[0].Kind)
}

func TestWriteoutEmitsUnitSurface(t *testing.T) {
	top := NewTopLevel()
	_, err := top.CreateGlobal("counter", I32)
	require.NoError(t, err)
	require.NoError(t, top.Preamble().Add(NewDefineObjective("deaths", "deathCount")))
	require.NoError(t, top.Preamble().Add(NewDefineTeam("red", "Red Team")))
	require.NoError(t, top.Preamble().Add(NewDefineBossbar("raid", "Raid")))

	fn, err := top.DefineFunction("main")
	require.NoError(t, err)
	finishFunction(t, fn)
	require.NoError(t, top.Preamble().Add(NewSetupFn(fn)))

	require.NoError(t, top.End())

	w := newRecordingWriter()
	require.NoError(t, top.Writeout(w))

	assert.Contains(t, w.setup, "objective counter ")
	assert.Contains(t, w.setup, "objective deaths deathCount")
	assert.Contains(t, w.setup, "team red Red Team")
	assert.Contains(t, w.setup, "bossbar raid Raid")
	assert.Contains(t, w.setup, "setup main")
	assert.Contains(t, w.setup, "objective success_tracker ")

	// Every block of every function lands in the table and the stream.
	assert.Contains(t, w.table, "main")
	assert.Contains(t, w.table, "main/body")
	assert.Contains(t, w.order, "main/body")
}

func TestWriteoutRequiresFinishedUnit(t *testing.T) {
	top := NewTopLevel()
	err := top.Writeout(newRecordingWriter())
	assert.ErrorIs(t, err, ErrFunctionState)
}

type recordingPragma struct {
	reduced []string
	applied []string
}

func (p *recordingPragma) Reduce(acc, val string) (string, error) {
	p.reduced = append(p.reduced, acc+"+"+val)
	return acc + val, nil
}

func (p *recordingPragma) Apply(_ *TopLevel, val string) (any, error) {
	p.applied = append(p.applied, val)
	return val, nil
}

func TestRunPragmas(t *testing.T) {
	top := NewTopLevel()
	top.AddPragma("acc", "a")
	top.AddPragma("acc", "b")
	top.AddPragma("acc", "c")
	top.AddPragma("solo", "x")

	acc := &recordingPragma{}
	solo := &recordingPragma{}
	results, err := top.RunPragmas(map[string]Pragma{"acc": acc, "solo": solo})
	require.NoError(t, err)

	// Repeats reduce pairwise in order, then apply exactly once.
	assert.Equal(t, []string{"a+b", "ab+c"}, acc.reduced)
	assert.Equal(t, []string{"abc"}, acc.applied)
	assert.Empty(t, solo.reduced)
	assert.Equal(t, []string{"x"}, solo.applied)
	assert.Equal(t, "abc", results["acc"])
	assert.Equal(t, "x", results["solo"])
}

func TestRunPragmasRejectsUnknownKey(t *testing.T) {
	top := NewTopLevel()
	top.AddPragma("mystery", "v")
	_, err := top.RunPragmas(map[string]Pragma{})
	assert.ErrorIs(t, err, ErrUnknownPragma)
}
