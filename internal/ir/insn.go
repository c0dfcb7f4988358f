package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// InsnKind enumerates the closed instruction set. Per-kind capabilities are
// resolved through a single dispatch table instead of open-ended
// subclassing.
type InsnKind uint8

const (
	InsnInvalid InsnKind = iota

	// control flow
	InsnBranch
	InsnReturn
	InsnCall
	InsnRunDeferredCallback

	// frame management
	InsnPushNewStackFrame
	InsnPopStack

	// data movement
	InsnAssign
	InsnSetConst

	// definitions (constructors)
	InsnDefineVariable
	InsnDefineParam
	InsnDefineReturn
	InsnDefineGlobal
	InsnCreateEvent

	// unit-level metadata
	InsnAddEventCondition
	InsnEventHandler
	InsnSetupFn
	InsnDefineObjective
	InsnDefineTeam
	InsnDefineBossbar
	InsnRevokeEventAdvancement

	// function traits
	InsnExternFlag
	InsnPureFlag
	InsnInlineFlag
	InsnRunCallbackOnExit

	insnKindCount
)

// insnMeta carries the capability flags of one instruction kind.
type insnMeta struct {
	name         string
	preambleSafe bool // no control-flow or ordering dependency
	topOnly      bool // unit preamble only
	funcOnly     bool // function preamble only
	copyable     bool // survives inlining
	terminator   bool
	constructor  bool // builds and returns an entity at add time
}

var insnTable = [insnKindCount]insnMeta{
	InsnBranch:              {name: "branch", copyable: true, terminator: true},
	InsnReturn:              {name: "ret", copyable: true, terminator: true},
	InsnCall:                {name: "call", copyable: true},
	InsnRunDeferredCallback: {name: "run_deferred_callback", copyable: true},

	InsnPushNewStackFrame: {name: "push_stack_frame", copyable: true},
	InsnPopStack:          {name: "pop_stack", copyable: true},

	InsnAssign:   {name: "assign", copyable: true},
	InsnSetConst: {name: "set_const", copyable: true},

	InsnDefineVariable: {name: "local", preambleSafe: true, funcOnly: true, copyable: true, constructor: true},
	InsnDefineParam:    {name: "parameter", preambleSafe: true, funcOnly: true, constructor: true},
	InsnDefineReturn:   {name: "return_var", preambleSafe: true, funcOnly: true, constructor: true},
	InsnDefineGlobal:   {name: "global", preambleSafe: true, topOnly: true, copyable: true, constructor: true},
	InsnCreateEvent:    {name: "event", preambleSafe: true, topOnly: true, copyable: true, constructor: true},

	InsnAddEventCondition:      {name: "add_event_condition", preambleSafe: true, topOnly: true, copyable: true},
	InsnEventHandler:           {name: "event_handler", preambleSafe: true, topOnly: true, copyable: true},
	InsnSetupFn:                {name: "setupfn", preambleSafe: true, topOnly: true, copyable: true},
	InsnDefineObjective:        {name: "objective", preambleSafe: true, topOnly: true, copyable: true},
	InsnDefineTeam:             {name: "team", preambleSafe: true, topOnly: true, copyable: true},
	InsnDefineBossbar:          {name: "bossbar", preambleSafe: true, topOnly: true, copyable: true},
	InsnRevokeEventAdvancement: {name: "revoke_event_adv", copyable: true},

	InsnExternFlag:        {name: "extern", preambleSafe: true, funcOnly: true},
	InsnPureFlag:          {name: "pure_func", preambleSafe: true, funcOnly: true},
	InsnInlineFlag:        {name: "inline", preambleSafe: true, funcOnly: true},
	InsnRunCallbackOnExit: {name: "run_callback_on_exit", preambleSafe: true, funcOnly: true},
}

// Insn is one IR instruction: a closed tagged variant. Vals holds the
// entity/literal operand slots in a per-kind positional layout, which keeps
// bulk remapping a plain key substitution over the slot list.
type Insn struct {
	Kind  InsnKind
	Vals  []Value
	Types []VarType
	Mode  PassMode
	Name  string
	Aux   string

	// built is the entity a constructor instruction produced at
	// activation time.
	built Value
}

func (in *Insn) meta() insnMeta {
	if in.Kind >= insnKindCount {
		return insnMeta{name: "invalid"}
	}
	return insnTable[in.Kind]
}

// InsnName returns the mnemonic of the instruction.
func (in *Insn) InsnName() string { return in.meta().name }

// Terminator reports whether the instruction ends a block.
func (in *Insn) Terminator() bool { return in.meta().terminator }

// PreambleSafe reports whether the instruction may live in a preamble.
func (in *Insn) PreambleSafe() bool { return in.meta().preambleSafe }

// InlineCopyable reports whether the instruction survives inlining.
func (in *Insn) InlineCopyable() bool { return in.meta().copyable }

// Constructor reports whether activation builds a new entity.
func (in *Insn) Constructor() bool { return in.meta().constructor }

// Built returns the entity a constructor instruction produced, or nil.
func (in *Insn) Built() Value { return in.built }

func (in *Insn) String() string {
	parts := make([]string, 0, len(in.Vals)+1)
	parts = append(parts, in.InsnName())
	for _, v := range in.Vals {
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, " ")
}

// Instruction constructors. The positional Vals layout of each kind is
// fixed here and nowhere else.

func NewBranch(target *BasicBlock) *Insn {
	return &Insn{Kind: InsnBranch, Vals: []Value{target}}
}

func NewReturn() *Insn { return &Insn{Kind: InsnReturn} }

func NewCall(fn VisibleFunction) *Insn {
	return &Insn{Kind: InsnCall, Vals: []Value{fn}}
}

func NewRunDeferredCallback() *Insn { return &Insn{Kind: InsnRunDeferredCallback} }

func NewPushNewStackFrame(types []VarType) *Insn {
	return &Insn{Kind: InsnPushNewStackFrame, Types: types}
}

func NewPopStack() *Insn { return &Insn{Kind: InsnPopStack} }

// NewAssign copies src (a variable or literal) into dst. A nil dst marks a
// discarded return destination and renders to nothing.
func NewAssign(dst *Variable, src Value) *Insn {
	return &Insn{Kind: InsnAssign, Vals: []Value{dst, src}}
}

func NewSetConst(dst *Variable, val IntLit) *Insn {
	return &Insn{Kind: InsnSetConst, Vals: []Value{dst, val}}
}

func NewDefineVariable(t VarType) *Insn {
	return &Insn{Kind: InsnDefineVariable, Types: []VarType{t}}
}

func NewDefineParam(t VarType, mode PassMode) *Insn {
	return &Insn{Kind: InsnDefineParam, Types: []VarType{t}, Mode: mode}
}

func NewDefineReturn(t VarType) *Insn {
	return &Insn{Kind: InsnDefineReturn, Types: []VarType{t}}
}

func NewDefineGlobal(t VarType) *Insn {
	return &Insn{Kind: InsnDefineGlobal, Types: []VarType{t}}
}

func NewCreateEvent(name string) *Insn {
	return &Insn{Kind: InsnCreateEvent, Name: name}
}

func NewAddEventCondition(ev *EventRef, path, value string) *Insn {
	return &Insn{Kind: InsnAddEventCondition, Vals: []Value{ev}, Name: path, Aux: value}
}

func NewEventHandler(handler *IRFunction, ev *EventRef) *Insn {
	return &Insn{Kind: InsnEventHandler, Vals: []Value{handler, ev}}
}

func NewSetupFn(fn VisibleFunction) *Insn {
	return &Insn{Kind: InsnSetupFn, Vals: []Value{fn}}
}

func NewDefineObjective(name, criteria string) *Insn {
	return &Insn{Kind: InsnDefineObjective, Name: name, Aux: criteria}
}

func NewDefineTeam(name, display string) *Insn {
	return &Insn{Kind: InsnDefineTeam, Name: name, Aux: display}
}

func NewDefineBossbar(name, display string) *Insn {
	return &Insn{Kind: InsnDefineBossbar, Name: name, Aux: display}
}

func NewRevokeEventAdvancement(fn *IRFunction) *Insn {
	return &Insn{Kind: InsnRevokeEventAdvancement, Vals: []Value{fn}}
}

func NewExternFlag() *Insn        { return &Insn{Kind: InsnExternFlag} }
func NewPureFlag() *Insn          { return &Insn{Kind: InsnPureFlag} }
func NewInlineFlag() *Insn        { return &Insn{Kind: InsnInlineFlag} }
func NewRunCallbackOnExit() *Insn { return &Insn{Kind: InsnRunCallbackOnExit} }

// activate runs the instruction's insertion-time hook against the sequence
// holder. Constructor kinds build and return their entity; trait kinds
// mutate the holder.
func (in *Insn) activate(holder Holder) (Value, error) {
	switch in.Kind {
	case InsnDefineVariable:
		v := &Variable{Type: in.Types[0], Role: RoleLocal}
		in.built = v
		return v, nil

	case InsnDefineParam:
		fn, err := holderFunction(holder, in)
		if err != nil {
			return nil, err
		}
		if fn.Finished() {
			return nil, fmt.Errorf("%s: add parameter to finished function: %w", fn.name, ErrFunctionState)
		}
		v := &Variable{Type: in.Types[0], Role: RoleParam, Mode: in.Mode}
		fn.params = append(fn.params, Param{Type: in.Types[0], Mode: in.Mode})
		in.built = v
		return v, nil

	case InsnDefineReturn:
		fn, err := holderFunction(holder, in)
		if err != nil {
			return nil, err
		}
		if fn.Finished() {
			return nil, fmt.Errorf("%s: add return to finished function: %w", fn.name, ErrFunctionState)
		}
		v := &Variable{Type: in.Types[0], Role: RoleReturn}
		fn.returns = append(fn.returns, in.Types[0])
		in.built = v
		return v, nil

	case InsnDefineGlobal:
		v := &Variable{Type: in.Types[0], Role: RoleGlobal}
		in.built = v
		return v, nil

	case InsnCreateEvent:
		ev := &EventRef{Name: in.Name}
		in.built = ev
		return ev, nil

	case InsnAddEventCondition:
		in.Vals[0].(*EventRef).AddCondition(in.Name, in.Aux)
		return nil, nil

	case InsnEventHandler:
		handler := in.Vals[0].(*IRFunction)
		ev := in.Vals[1].(*EventRef)
		if ev.Name != "minecraft:tick" && ev.Name != "minecraft:load" {
			if err := handler.AddEventRevoke(); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case InsnExternFlag:
		fn, err := holderFunction(holder, in)
		if err != nil {
			return nil, err
		}
		fn.SetExtern(true)
		return nil, nil

	case InsnPureFlag:
		fn, err := holderFunction(holder, in)
		if err != nil {
			return nil, err
		}
		fn.SetPure()
		return nil, nil

	case InsnInlineFlag:
		fn, err := holderFunction(holder, in)
		if err != nil {
			return nil, err
		}
		fn.SetInline()
		return nil, nil

	case InsnRunCallbackOnExit:
		fn, err := holderFunction(holder, in)
		if err != nil {
			return nil, err
		}
		fn.postExit = append(fn.postExit, NewRunDeferredCallback())
		return nil, nil
	}
	return nil, nil
}

func holderFunction(holder Holder, in *Insn) (*IRFunction, error) {
	fn, ok := holder.(*IRFunction)
	if !ok {
		return nil, fmt.Errorf("%s outside a function preamble: %w", in.InsnName(), ErrNotPreambleSafe)
	}
	return fn, nil
}

// declare registers usage of the entities the instruction references.
func (in *Insn) declare() {
	switch in.Kind {
	case InsnBranch:
		if b, ok := in.Vals[0].(*BasicBlock); ok {
			b.Usage()
		}
	case InsnCall:
		if fn, ok := in.Vals[0].(VisibleFunction); ok {
			fn.Usage()
		}
	case InsnEventHandler:
		in.Vals[0].(*IRFunction).Usage()
	case InsnSetupFn:
		if fn, ok := in.Vals[0].(VisibleFunction); ok {
			fn.Usage()
		}
	}
}

// copyWithChanges clones the instruction with the substitution map applied
// to its operand slots. The built entity is not carried over; a fresh
// activation must produce it.
func (in *Insn) copyWithChanges(mapping map[Value]Value) *Insn {
	out := &Insn{
		Kind: in.Kind,
		Mode: in.Mode,
		Name: in.Name,
		Aux:  in.Aux,
	}
	if len(in.Vals) > 0 {
		out.Vals = make([]Value, len(in.Vals))
		copy(out.Vals, in.Vals)
		for i, v := range out.Vals {
			if nv, ok := mapping[v]; ok {
				out.Vals[i] = nv
			}
		}
	}
	if len(in.Types) > 0 {
		out.Types = make([]VarType, len(in.Types))
		copy(out.Types, in.Types)
	}
	return out
}

// applyMapping substitutes operand slots of the given kind in place.
func (in *Insn) applyMapping(kind ValueKind, mapping map[Value]Value) {
	for i, v := range in.Vals {
		if v == nil || !kindMatches(kind, v) {
			continue
		}
		if nv, ok := mapping[v]; ok {
			in.Vals[i] = nv
		}
	}
}

// applyPreamble emits the instruction's unit-level effect into the backend
// writer. Kinds without a preamble effect are no-ops.
func (in *Insn) applyPreamble(w FuncWriter, holder Holder) error {
	switch in.Kind {
	case InsnDefineGlobal:
		name, err := holder.NameFor(in.built)
		if err != nil {
			return err
		}
		return w.WriteObjective(name, "")
	case InsnEventHandler:
		handler := in.Vals[0].(*IRFunction)
		if handler.Inline() {
			return fmt.Errorf("event handler %s is inline: %w", handler.name, ErrFunctionState)
		}
		return w.WriteEventHandler(handler, in.Vals[1].(*EventRef))
	case InsnSetupFn:
		fn := in.Vals[0].(VisibleFunction)
		if fn.Inline() {
			return fmt.Errorf("setup function is inline: %w", ErrFunctionState)
		}
		return w.WriteSetupFunction(fn)
	case InsnDefineObjective:
		return w.WriteObjective(in.Name, in.Aux)
	case InsnDefineTeam:
		return w.WriteTeam(in.Name, in.Aux)
	case InsnDefineBossbar:
		return w.WriteBossbar(in.Name, in.Aux)
	}
	return nil
}

// applyBlock renders the instruction's command stream for one block.
func (in *Insn) applyBlock(cw *CmdWriter, fn *IRFunction) error {
	switch in.Kind {
	case InsnBranch:
		target := in.Vals[0].(*BasicBlock)
		cw.Write("function " + target.GlobalName())

	case InsnCall:
		callee := in.Vals[0].(VisibleFunction)
		if ext, ok := callee.(*ExternFunction); ok {
			return fmt.Errorf("call %s: %w", ext.name, ErrUnlinkedExtern)
		}
		cw.Write("function " + callee.GlobalName())

	case InsnRunDeferredCallback:
		cw.Write("function cmdc:invoke_callback")

	case InsnPushNewStackFrame:
		defaults := make([]string, len(in.Types))
		for i, t := range in.Types {
			if t == Q10 {
				defaults[i] = "0.0d"
			} else {
				defaults[i] = "0"
			}
		}
		cw.Write("data modify storage cmdc:stack frames prepend value [" +
			strings.Join(defaults, ", ") + "]")

	case InsnPopStack:
		cw.Write("data remove storage cmdc:stack frames[0]")

	case InsnAssign:
		if in.Vals[0] == nil {
			return nil // discarded return destination
		}
		dst := in.Vals[0].(*Variable)
		dstName, err := fn.NameFor(dst)
		if err != nil {
			return err
		}
		switch src := in.Vals[1].(type) {
		case IntLit:
			cw.Write("scoreboard players set " + dstName + " " + strconv.Itoa(int(src)))
		case FloatLit:
			cw.Write("scoreboard players set " + dstName + " " +
				strconv.FormatFloat(float64(src), 'f', -1, 64))
		case *Variable:
			srcName, err := fn.NameFor(src)
			if err != nil {
				return err
			}
			cw.Write("scoreboard players operation " + dstName + " = " + srcName)
		default:
			return fmt.Errorf("assign source %v: %w", in.Vals[1], ErrBadArgs)
		}

	case InsnSetConst:
		if in.Vals[0] == nil {
			return nil
		}
		dst := in.Vals[0].(*Variable)
		dstName, err := fn.NameFor(dst)
		if err != nil {
			return err
		}
		cw.Write("scoreboard players set " + dstName + " " +
			strconv.Itoa(int(in.Vals[1].(IntLit))))

	case InsnRevokeEventAdvancement:
		handler := in.Vals[0].(*IRFunction)
		cw.Write("advancement revoke @s only " + handler.GlobalName())
	}
	return nil
}
