package ir

import (
	"fmt"
	"sort"
)

// VisibleFunction is a function or extern stub reachable by name from a
// unit's root scope.
type VisibleFunction interface {
	Value
	Finished() bool
	Params() []Param
	Returns() []VarType
	// ExpectSignature asserts signature equality with another
	// declaration. On an unfinished function the check is deferred and
	// replayed by End.
	ExpectSignature(other VisibleFunction) error
	GlobalName() string
	// FuncTable returns every generated name the function contributes to
	// the unit-wide function table.
	FuncTable() []string
	Writeout(w FuncWriter, temps *TempPool) error
	ExternVisibility() bool
	Pure() bool
	Inline() bool
	Usage()
	IsEmpty() bool
}

func signatureEqual(a, b VisibleFunction) bool {
	ap, bp := a.Params(), b.Params()
	if len(ap) != len(bp) {
		return false
	}
	for i := range ap {
		if ap[i] != bp[i] {
			return false
		}
	}
	ar, br := a.Returns(), b.Returns()
	if len(ar) != len(br) {
		return false
	}
	for i := range ar {
		if ar[i] != br[i] {
			return false
		}
	}
	return true
}

// validateArgs checks a call's actual arguments and return destinations
// against the declared signature. Literal constants bind only to the exact
// numeric kind the parameter declares; a nil return destination discards
// that result.
func validateArgs(f VisibleFunction, args []Value, retvars []*Variable) error {
	if !f.Finished() {
		return fmt.Errorf("call target not finished: %w", ErrFunctionState)
	}
	params := f.Params()
	if len(params) > 0 {
		if len(args) != len(params) {
			return fmt.Errorf("want %d args, got %d: %w", len(params), len(args), ErrBadArgs)
		}
		for i, arg := range args {
			p := params[i]
			switch a := arg.(type) {
			case IntLit:
				if p.Type != I32 {
					return fmt.Errorf("arg %d: int literal on %s parameter: %w", i, p.Type, ErrBadArgs)
				}
			case FloatLit:
				if p.Type != Q10 {
					return fmt.Errorf("arg %d: decimal literal on %s parameter: %w", i, p.Type, ErrBadArgs)
				}
			case *Variable:
				if a.Type != p.Type {
					return fmt.Errorf("arg %d: %s variable on %s parameter: %w", i, a.Type, p.Type, ErrBadArgs)
				}
			default:
				return fmt.Errorf("arg %d: not a variable or literal: %w", i, ErrBadArgs)
			}
		}
	} else if len(args) != 0 {
		return fmt.Errorf("args on a function with no parameters: %w", ErrBadArgs)
	}

	returns := f.Returns()
	if len(returns) > 0 {
		if len(retvars) != len(returns) {
			return fmt.Errorf("want %d return destinations, got %d: %w", len(returns), len(retvars), ErrBadArgs)
		}
		for i, dst := range retvars {
			if dst == nil {
				continue // destination of nowhere is allowed
			}
			if dst.Type != returns[i] {
				return fmt.Errorf("retvar %d: %s variable on %s return: %w", i, dst.Type, returns[i], ErrBadArgs)
			}
		}
	} else if len(retvars) != 0 {
		return fmt.Errorf("return destinations on a function with no returns: %w", ErrBadArgs)
	}
	return nil
}

// ExternFunction is a placeholder for a function defined in another unit:
// a global name and a signature, nothing more. It cannot be written out
// until linking resolves it to a genuine definition.
type ExternFunction struct {
	name    string
	params  []Param
	returns []VarType
}

// NewExternFunction declares an extern stub for the given global name.
func NewExternFunction(globalName string, params []Param, returns []VarType) *ExternFunction {
	return &ExternFunction{
		name:    globalName,
		params:  append([]Param(nil), params...),
		returns: append([]VarType(nil), returns...),
	}
}

func (*ExternFunction) valueNode() {}

func (e *ExternFunction) Finished() bool     { return true }
func (e *ExternFunction) Params() []Param    { return e.params }
func (e *ExternFunction) Returns() []VarType { return e.returns }

// GlobalName panics: an unresolved extern must never reach code generation.
// A correct link rewrites every reference before write-out.
func (e *ExternFunction) GlobalName() string {
	panic("extern function cannot be referenced: " + e.name)
}

func (e *ExternFunction) ExpectSignature(other VisibleFunction) error {
	if !other.Finished() {
		return other.ExpectSignature(e)
	}
	if !signatureEqual(e, other) {
		return fmt.Errorf("extern %s: %w", e.name, ErrSignature)
	}
	return nil
}

func (e *ExternFunction) FuncTable() []string { return nil }

func (e *ExternFunction) Writeout(FuncWriter, *TempPool) error {
	return fmt.Errorf("%s: %w", e.name, ErrUnlinkedExtern)
}

func (e *ExternFunction) ExternVisibility() bool { return true }

// Pure is false even when the real function is pure: the extern must not
// promise what it cannot see.
func (e *ExternFunction) Pure() bool { return false }

// Inline is false for the same reason as Pure.
func (e *ExternFunction) Inline() bool { return false }

func (e *ExternFunction) Usage()        {}
func (e *ExternFunction) IsEmpty() bool { return false }

func (e *ExternFunction) String() string { return "Extern(" + e.name + ")" }

// IRFunction owns a scope of blocks and variables parented to the unit
// scope, a preamble, a signature, and the entry/exit super-nodes. Lifecycle:
// declared (name reserved) -> defined (has user blocks) -> finished
// (signature frozen) -> variables-finalized (frame layout fixed).
type IRFunction struct {
	varHolder
	name     string
	top      *TopLevel
	preamble *Preamble

	entry    *BasicBlock
	exit     *BasicBlock
	postExit []*Insn

	params  []Param
	returns []VarType

	finished      bool
	varsFinalized bool
	isExtern      bool
	isPure        bool
	isInline      bool
	use           int

	pendingSig []VisibleFunction
}

func newIRFunction(name string, top *TopLevel) *IRFunction {
	f := &IRFunction{name: name, top: top}
	f.scope = NewScope(top.scope)
	f.preamble = newPreamble(f, false)
	// "0" prefix keeps the synthetic names clear of front-end blocks.
	f.entry = f.newSuperBlock("0entry")
	f.entry.isEntry = true
	f.exit = f.newSuperBlock("0ret")
	return f
}

func (f *IRFunction) newSuperBlock(hint string) *BasicBlock {
	return f.Unique(hint, func(name string) Value {
		return newBasicBlock(name, f, true)
	}).(*BasicBlock)
}

func (*IRFunction) valueNode() {}

func (f *IRFunction) String() string { return "Function(" + f.name + ")" }

// Preamble returns the function preamble.
func (f *IRFunction) Preamble() *Preamble { return f.preamble }

// EntryBlock returns the entry super-node. Entry and exit are reachable
// only through these role accessors; their identity is not exposed
// elsewhere, which keeps dead-exit folding sound.
func (f *IRFunction) EntryBlock() *BasicBlock { return f.entry }

// ExitBlock returns the exit super-node.
func (f *IRFunction) ExitBlock() *BasicBlock { return f.exit }

func (f *IRFunction) Params() []Param    { return f.params }
func (f *IRFunction) Returns() []VarType { return f.returns }

// AddParameter declares the next parameter through the preamble and returns
// its variable.
func (f *IRFunction) AddParameter(t VarType, mode PassMode) (*Variable, error) {
	v, err := f.preamble.Define(NewDefineParam(t, mode), "arg")
	if err != nil {
		return nil, err
	}
	return v.(*Variable), nil
}

// AddReturn declares the next return value through the preamble and returns
// its variable.
func (f *IRFunction) AddReturn(t VarType) (*Variable, error) {
	v, err := f.preamble.Define(NewDefineReturn(t), "ret")
	if err != nil {
		return nil, err
	}
	return v.(*Variable), nil
}

// Usage registers a call-site reference to the function and its entry
// point.
func (f *IRFunction) Usage() {
	f.use++
	f.entryPointUsage()
}

func (f *IRFunction) entryPointUsage() {
	all := f.AllBlocks()
	if len(all) > 0 {
		all[0].Usage()
	}
	if !f.varsFinalized {
		if user := f.Blocks(); len(user) > 0 {
			user[0].Usage()
		}
	}
}

// HasUsage reports whether any reference to the function was declared.
func (f *IRFunction) HasUsage() bool { return f.use > 0 }

// Reset clears the function's usage counters between optimizer passes.
func (f *IRFunction) Reset() {
	f.use = 0
	f.ResetVarUsage()
}

// IsEmpty reports whether every block of a defined function is empty.
func (f *IRFunction) IsEmpty() bool {
	for _, b := range f.AllBlocks() {
		if !b.IsEmpty() {
			return false
		}
	}
	return true
}

// SetExtern marks the function externally visible; it survives usage-based
// elimination.
func (f *IRFunction) SetExtern(extern bool) { f.isExtern = extern }

func (f *IRFunction) ExternVisibility() bool { return f.isExtern }

// SetPure marks the function side-effect free. No checks are performed.
func (f *IRFunction) SetPure() { f.isPure = true }

func (f *IRFunction) Pure() bool { return f.isPure }

// SetInline marks the function for inlining at call sites.
func (f *IRFunction) SetInline() { f.isInline = true }

func (f *IRFunction) Inline() bool { return f.isInline }

// Defined reports whether the front end created at least one user block.
func (f *IRFunction) Defined() bool {
	if !f.varsFinalized {
		return len(f.Blocks()) > 0
	}
	return len(f.AllBlocks()) > 0
}

func (f *IRFunction) Finished() bool { return f.finished }

// Finalized reports whether the frame layout is fixed.
func (f *IRFunction) Finalized() bool { return f.varsFinalized }

// GlobalName returns the function's unit-wide name.
func (f *IRFunction) GlobalName() string { return f.name }

// Blocks returns the user blocks in creation order, excluding the entry and
// exit super-nodes.
func (f *IRFunction) Blocks() []*BasicBlock {
	var out []*BasicBlock
	f.scope.Each(func(_ string, v Value) {
		if b, ok := v.(*BasicBlock); ok && b != f.entry && b != f.exit {
			out = append(out, b)
		}
	})
	return out
}

// AllBlocks returns every block in creation order, super-nodes included.
func (f *IRFunction) AllBlocks() []*BasicBlock {
	var out []*BasicBlock
	f.scope.Each(func(_ string, v Value) {
		if b, ok := v.(*BasicBlock); ok {
			out = append(out, b)
		}
	})
	return out
}

// GetOrCreateBlock resolves a block by name, creating an undefined one on
// first reference.
func (f *IRFunction) GetOrCreateBlock(name string) *BasicBlock {
	return f.scope.GetOrCreate(name, func(n string) Value {
		return newBasicBlock(n, f, false)
	}).(*BasicBlock)
}

// CreateBlock creates a defined block under a uniquified name.
func (f *IRFunction) CreateBlock(hint string) *BasicBlock {
	b := f.Unique(hint, func(name string) Value {
		return newBasicBlock(name, f, false)
	}).(*BasicBlock)
	b.Defined = true
	return b
}

// CreateVar declares a local variable through the function preamble.
func (f *IRFunction) CreateVar(hint string, t VarType) (*Variable, error) {
	v, err := f.preamble.Define(NewDefineVariable(t), hint)
	if err != nil {
		return nil, err
	}
	return v.(*Variable), nil
}

// ExpectSignature checks signature equality against a finished declaration.
// While this function is unfinished the request is deferred and replayed by
// End.
func (f *IRFunction) ExpectSignature(other VisibleFunction) error {
	if !other.Finished() {
		return fmt.Errorf("%s: comparing against unfinished function: %w", f.name, ErrFunctionState)
	}
	if !f.finished {
		f.pendingSig = append(f.pendingSig, other)
		return nil
	}
	if !signatureEqual(f, other) {
		return fmt.Errorf("%s: %w", f.name, ErrSignature)
	}
	return nil
}

// End closes the function: every user block must be defined, the signature
// freezes, and deferred signature checks replay.
func (f *IRFunction) End() error {
	if !f.Defined() {
		return fmt.Errorf("%s has no blocks: %w", f.name, ErrFunctionState)
	}
	if f.finished {
		return fmt.Errorf("%s already finished: %w", f.name, ErrFunctionState)
	}
	for _, b := range f.Blocks() {
		if err := b.End(); err != nil {
			return err
		}
	}
	f.finished = true
	for _, other := range f.pendingSig {
		if err := f.ExpectSignature(other); err != nil {
			return err
		}
	}
	f.pendingSig = nil
	return nil
}

// IsClosed reports whether every user block is terminated: a closed
// function has no implicit fallthrough path to the exit node.
func (f *IRFunction) IsClosed() bool {
	for _, b := range f.Blocks() {
		if !b.IsTerminated() {
			return false
		}
	}
	return true
}

// FuncTable lists every generated name the function contributes.
func (f *IRFunction) FuncTable() []string {
	var out []string
	for _, b := range f.AllBlocks() {
		out = append(out, b.GlobalName())
	}
	return append(out, f.GlobalName())
}

// Writeout emits the function's preamble effects and every block's command
// stream.
func (f *IRFunction) Writeout(w FuncWriter, temps *TempPool) error {
	if !f.finished {
		return fmt.Errorf("%s not finished: %w", f.name, ErrFunctionState)
	}
	if err := f.preamble.Apply(w); err != nil {
		return err
	}
	for _, b := range f.AllBlocks() {
		cmds, err := b.writeout(w, temps)
		if err != nil {
			return err
		}
		if err := w.WriteFunction(b.GlobalName(), cmds); err != nil {
			return err
		}
	}
	return nil
}

// GetRegisters returns the stack-resident variables after finalization,
// excluding entity-local storage.
func (f *IRFunction) GetRegisters() ([]*Variable, error) {
	if !f.varsFinalized {
		return nil, fmt.Errorf("%s not finalized: %w", f.name, ErrFunctionState)
	}
	var out []*Variable
	f.scope.Each(func(_ string, v Value) {
		if vr, ok := v.(*Variable); ok && vr.StackResident() {
			out = append(out, vr)
		}
	})
	return out, nil
}

// AddEventRevoke prepends an advancement revoke so the event can re-fire.
func (f *IRFunction) AddEventRevoke() error {
	return f.entry.Add(NewRevokeEventAdvancement(f))
}

// VariablesFinalized fixes the frame layout: it validates and pushes the
// frame, assigns parameter/return slots, folds a dead exit into the entry,
// and releases both super-nodes to ordinary usage accounting. The function
// is structurally immutable afterwards.
func (f *IRFunction) VariablesFinalized() error {
	if !f.Defined() {
		return fmt.Errorf("%s not defined: %w", f.name, ErrFunctionState)
	}
	if f.varsFinalized {
		return fmt.Errorf("%s already finalized: %w", f.name, ErrFunctionState)
	}
	stackVars, err := f.addEntryExit()
	if err != nil {
		return err
	}
	f.configureParameters(len(stackVars) > 0)
	if f.IsClosed() {
		// No fallthrough path exists, so the exit body moves into the
		// entry and the exit empties out for later elimination.
		f.entry.Force = true
		f.entry.appendRaw(f.exit.insns)
		f.exit.insns = nil
	}
	f.entry.Superclear()
	f.exit.Superclear()
	f.varsFinalized = true
	return nil
}

// addEntryExit validates the frame layout and populates the super-nodes:
// frame push/pop when stack variables exist, queued post-exit effects after
// the pop, and the unconditional branch from entry to the first user block.
func (f *IRFunction) addEntryExit() ([]*Variable, error) {
	var stackVars []*Variable
	f.scope.Each(func(_ string, v Value) {
		if vr, ok := v.(*Variable); ok && vr.Role == RoleLocal && vr.HasSlot && !vr.EntityLocal {
			stackVars = append(stackVars, vr)
		}
	})
	sort.Slice(stackVars, func(i, j int) bool { return stackVars[i].Slot < stackVars[j].Slot })

	if len(stackVars) > 0 {
		if stackVars[0].Slot != 0 {
			return nil, fmt.Errorf("%s: stack tip offset %d is not 0: %w", f.name, stackVars[0].Slot, ErrStackLayout)
		}
		if stackVars[len(stackVars)-1].Slot != len(stackVars)-1 {
			return nil, fmt.Errorf("%s: stack base offset %d is not %d: %w",
				f.name, stackVars[len(stackVars)-1].Slot, len(stackVars)-1, ErrStackLayout)
		}
		seen := make(map[int]bool, len(stackVars))
		for _, v := range stackVars {
			if seen[v.Slot] {
				return nil, fmt.Errorf("%s: duplicate stack offset %d: %w", f.name, v.Slot, ErrStackLayout)
			}
			seen[v.Slot] = true
		}
		// Slot types go base-to-tip so default initialization matches
		// the physical layout.
		types := make([]VarType, len(stackVars))
		for i, v := range stackVars {
			types[len(stackVars)-1-i] = v.Type
		}
		if err := f.entry.Add(NewPushNewStackFrame(types)); err != nil {
			return nil, err
		}
		if err := f.exit.Add(NewPopStack()); err != nil {
			return nil, err
		}
	}
	for _, in := range f.postExit {
		if err := f.exit.Add(in); err != nil {
			return nil, err
		}
	}
	// The entry super-node never falls through.
	if err := f.entry.Add(NewBranch(f.Blocks()[0])); err != nil {
		return nil, err
	}
	return stackVars, nil
}

// configureParameters assigns each parameter and then each return variable
// a dedicated stack slot at increasing offsets, shifted one frame level
// when the function pushed its own frame.
func (f *IRFunction) configureParameters(hasOwnFrame bool) {
	frame := 0
	if hasOwnFrame {
		frame = 1
	}
	offset := 0
	var rets []*Variable
	f.scope.Each(func(_ string, v Value) {
		vr, ok := v.(*Variable)
		if !ok {
			return
		}
		switch vr.Role {
		case RoleParam:
			vr.Proxy = &StackSlot{Offset: offset, Frame: frame}
			offset++
		case RoleReturn:
			rets = append(rets, vr)
		}
	})
	for _, vr := range rets {
		vr.Proxy = &StackSlot{Offset: offset, Frame: frame}
		offset++
	}
}
