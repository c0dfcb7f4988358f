package ir

import "fmt"

// BasicBlock is a named instruction sequence representing one control-flow
// node of a function. Entry/exit super-nodes are blocks with the super flag:
// they are pre-defined, pinned at use count 2 until Superclear, and the
// entry aliases the function's own global name.
type BasicBlock struct {
	InsnSeq
	name string
	fn   *IRFunction

	// Defined distinguishes blocks the front end explicitly created from
	// blocks that were merely referenced.
	Defined bool
	// IsFunction marks a block that behaves as an inlined call target;
	// such blocks are implicitly terminated.
	IsFunction bool
	// Force bypasses the termination check. Only frame insertion sets it.
	Force bool
	// NeedsSuccessTracker requests a success-cell store at the end of the
	// generated command stream.
	NeedsSuccessTracker bool

	super   bool
	isEntry bool
	cleared bool
	use     int
}

func newBasicBlock(name string, fn *IRFunction, super bool) *BasicBlock {
	b := &BasicBlock{
		InsnSeq: newInsnSeq(fn),
		name:    name,
		fn:      fn,
		super:   super,
		Defined: super,
	}
	b.check = b.validate
	return b
}

func (*BasicBlock) valueNode() {}

// Name returns the block's scope-local name.
func (b *BasicBlock) Name() string { return b.name }

// Function returns the owning function.
func (b *BasicBlock) Function() *IRFunction { return b.fn }

// IsSuper reports whether the block is one of the function's entry/exit
// super-nodes.
func (b *BasicBlock) IsSuper() bool { return b.super }

// IsEntry reports whether the block is the entry super-node.
func (b *BasicBlock) IsEntry() bool { return b.super && b.isEntry }

// GlobalName returns the backend name for the block. The entry super-node
// aliases the function's own name.
func (b *BasicBlock) GlobalName() string {
	if b.super && b.isEntry {
		return b.fn.GlobalName()
	}
	return b.fn.name + "/" + b.name
}

func (b *BasicBlock) String() string {
	return "BasicBlock(" + b.GlobalName() + ")"
}

// Usage bumps the block's usage count. Super-nodes ignore usage while
// pinned.
func (b *BasicBlock) Usage() {
	if b.super && !b.cleared {
		return
	}
	b.use++
}

// UseCount returns the usage counter. A pinned super-node reports 2 to
// prevent elimination and inlining; a cleared entry node counts the
// function's own uses on top of direct branches.
func (b *BasicBlock) UseCount() int {
	if b.super {
		if !b.cleared {
			return 2
		}
		if b.isEntry {
			return 1 + b.use
		}
	}
	return b.use
}

// ResetUsage clears the counter. Pinned super-nodes stay pinned.
func (b *BasicBlock) ResetUsage() {
	if b.super && !b.cleared {
		return
	}
	b.use = 0
}

// Superclear releases a super-node from its pinned state once the
// function's frame layout is fixed, returning it to ordinary usage-based
// accounting.
func (b *BasicBlock) Superclear() { b.cleared = true }

// IsEmpty reports whether the block holds no instructions. A pinned
// super-node never reports empty.
func (b *BasicBlock) IsEmpty() bool {
	if b.super && !b.cleared {
		return false
	}
	return b.Empty()
}

// End closes the block, failing if it was referenced but never defined.
func (b *BasicBlock) End() error {
	if !b.Defined {
		return fmt.Errorf("%s: %w", b.GlobalName(), ErrBlockUndefined)
	}
	return nil
}

// IsTerminated reports whether control cannot fall through the block.
// Function-call-target blocks are terminated unconditionally.
func (b *BasicBlock) IsTerminated() bool {
	if b.IsFunction {
		return true
	}
	if len(b.insns) == 0 {
		return false
	}
	return b.insns[len(b.insns)-1].Terminator()
}

// validate rejects appends past a terminator unless forced, and rewrites a
// Return into a Branch to the function's shared exit super-node so every
// return funnels through one join point.
func (b *BasicBlock) validate(in *Insn) (*Insn, error) {
	if !b.Force && len(b.insns) > 0 && b.insns[len(b.insns)-1].Terminator() {
		return nil, fmt.Errorf("%s terminated by %s, tried adding %s: %w",
			b, b.insns[len(b.insns)-1], in, ErrTerminated)
	}
	if in.Kind == InsnReturn {
		return NewBranch(b.fn.exit), nil
	}
	return in, nil
}

// writeout renders the block's command stream.
func (b *BasicBlock) writeout(fw FuncWriter, temps *TempPool) ([]string, error) {
	cw := NewCmdWriter(fw, temps)
	for _, in := range b.insns {
		if err := in.applyBlock(cw, b.fn); err != nil {
			return nil, err
		}
	}
	if b.NeedsSuccessTracker {
		cw.Write("scoreboard players set success_tracker 1")
	}
	return cw.Output(), nil
}
