package ir

import "strconv"

// Value is anything that can be named in a Scope or occupy an instruction
// operand slot: variables, blocks, functions, events, utility entities and
// literal constants.
type Value interface {
	valueNode()
}

// ValueKind classifies operand slots so bulk remapping can restrict itself
// to one entity category.
type ValueKind uint8

const (
	KindAny ValueKind = iota
	KindVariable
	KindBlock
	KindFunction // any VisibleFunction, extern or genuine
	KindExtern   // ExternFunction only
	KindEvent
)

func valueKindOf(v Value) ValueKind {
	switch v.(type) {
	case *Variable:
		return KindVariable
	case *BasicBlock:
		return KindBlock
	case *ExternFunction:
		return KindExtern
	case *IRFunction:
		return KindFunction
	case *EventRef:
		return KindEvent
	default:
		return KindAny
	}
}

func kindMatches(want ValueKind, v Value) bool {
	if want == KindAny {
		return true
	}
	got := valueKindOf(v)
	if want == KindFunction {
		return got == KindFunction || got == KindExtern
	}
	return got == want
}

// VarType enumerates the storage types the IR knows about.
type VarType uint8

const (
	// I32 is a 32-bit signed integer slot.
	I32 VarType = iota
	// Q10 is a fixed-point decimal slot.
	Q10
)

func (t VarType) String() string {
	switch t {
	case I32:
		return "i32"
	case Q10:
		return "q10"
	default:
		return "vartype(" + strconv.Itoa(int(t)) + ")"
	}
}

// PassMode tells whether a parameter is passed by independent copy or by
// shared alias.
type PassMode uint8

const (
	ByValue PassMode = iota
	ByRef
)

func (m PassMode) String() string {
	if m == ByRef {
		return "byref"
	}
	return "byval"
}

// Param is one entry of a function signature.
type Param struct {
	Type VarType
	Mode PassMode
}

// VarRole distinguishes how a variable is bound to a function or unit.
type VarRole uint8

const (
	RoleLocal VarRole = iota
	RoleParam
	RoleReturn
	RoleGlobal
)

// StackSlot is frame-addressed storage assigned to parameters and return
// variables during finalization. Frame counts the extra frame levels between
// the slot and the current stack tip.
type StackSlot struct {
	Offset int
	Frame  int
}

// Variable is a typed storage cell owned by a function scope or the top
// level. Locals that should live on the stack frame are given a slot request
// before finalization; parameters and returns receive proxy storage when the
// function is finalized.
type Variable struct {
	Type VarType
	Role VarRole
	Mode PassMode // parameters only

	// Frame slot request set by the storage allocator. Slot is only
	// meaningful while HasSlot holds.
	HasSlot bool
	Slot    int

	// EntityLocal variables live on an entity rather than the stack frame
	// and never count as registers.
	EntityLocal bool

	Proxy *StackSlot

	use int
}

func (*Variable) valueNode() {}

// SetFrameSlot requests a dedicated frame slot at the given offset.
func (v *Variable) SetFrameSlot(offset int) {
	v.HasSlot = true
	v.Slot = offset
}

// StackResident reports whether the variable occupies frame storage, either
// directly or through a parameter/return proxy.
func (v *Variable) StackResident() bool {
	if v.EntityLocal {
		return false
	}
	return v.HasSlot || v.Proxy != nil
}

func (v *Variable) Usage()         { v.use++ }
func (v *Variable) ResetUsage()    { v.use = 0 }
func (v *Variable) UseCount() int  { return v.use }
func (v *Variable) HasUsage() bool { return v.use > 0 }

// EventRef names an event that handler functions bind to.
type EventRef struct {
	Name       string
	Conditions []EventCondition
}

// EventCondition is a path/value pair that must match for the event to fire.
type EventCondition struct {
	Path  string
	Value string
}

func (*EventRef) valueNode() {}

// AddCondition registers a condition on the event.
func (e *EventRef) AddCondition(path, value string) {
	e.Conditions = append(e.Conditions, EventCondition{Path: path, Value: value})
}

// UtilEntity is a well-known helper entity seeded into every unit's root
// scope (position utility, global storage holder).
type UtilEntity struct {
	Name string
}

func (*UtilEntity) valueNode() {}

// IntLit is a literal integer operand. Literal arguments bind only to i32
// parameters.
type IntLit int32

func (IntLit) valueNode() {}

// FloatLit is a literal fixed-point operand. Literal arguments bind only to
// q10 parameters.
type FloatLit float64

func (FloatLit) valueNode() {}
