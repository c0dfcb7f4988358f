package ir

// FuncWriter is the backend capability a finished unit is written into.
// The core stays agnostic of the concrete output: implementations emit
// files, text, or test fixtures.
type FuncWriter interface {
	// WriteFuncTable emits the unit-wide table of generated names.
	WriteFuncTable(table []string) error
	// WriteFunction emits one block's generated command stream under its
	// global name.
	WriteFunction(name string, cmds []string) error
	// WriteEventHandler binds a handler function to an event.
	WriteEventHandler(handler VisibleFunction, ev *EventRef) error
	// WriteSetupFunction registers a setup-phase function.
	WriteSetupFunction(fn VisibleFunction) error
	// WriteObjective declares a named counter with optional criteria.
	WriteObjective(name, criteria string) error
	// WriteTeam declares a named team with optional display text.
	WriteTeam(name, display string) error
	// WriteBossbar declares a named bossbar with optional display text.
	WriteBossbar(name, display string) error
}

// CmdWriter accumulates one block's command stream in three regions:
// prepended commands, the main body, and trailing commands.
type CmdWriter struct {
	pre   []string
	out   []string
	post  []string
	fw    FuncWriter
	temps *TempPool
}

// NewCmdWriter creates a command writer backed by the given function writer
// and scratch pool.
func NewCmdWriter(fw FuncWriter, temps *TempPool) *CmdWriter {
	return &CmdWriter{fw: fw, temps: temps}
}

// Prepend adds a command before the main body.
func (w *CmdWriter) Prepend(cmd string) { w.pre = append(w.pre, cmd) }

// Write appends a command to the main body.
func (w *CmdWriter) Write(cmd string) { w.out = append(w.out, cmd) }

// Last adds a command after the main body.
func (w *CmdWriter) Last(cmd string) { w.post = append(w.post, cmd) }

// Output returns the final command stream.
func (w *CmdWriter) Output() []string {
	out := make([]string, 0, len(w.pre)+len(w.out)+len(w.post))
	out = append(out, w.pre...)
	out = append(out, w.out...)
	out = append(out, w.post...)
	return out
}

// AllocateTemp checks a scratch cell out of the unit pool.
func (w *CmdWriter) AllocateTemp() (string, error) { return w.temps.Allocate() }

// FreeTemp returns a scratch cell to the unit pool.
func (w *CmdWriter) FreeTemp(name string) error { return w.temps.Free(name) }
