package ir

import "fmt"

// InsnSeq is an ordered, mutable instruction list owned by exactly one
// holder: a function's preamble, the unit preamble, or a basic block.
type InsnSeq struct {
	insns  []*Insn
	holder Holder

	// check validates (and may rewrite) an instruction before insertion.
	check func(in *Insn) (*Insn, error)
}

func newInsnSeq(holder Holder) InsnSeq {
	return InsnSeq{holder: holder}
}

// Insns exposes the instruction list. Callers must not grow it directly.
func (s *InsnSeq) Insns() []*Insn { return s.insns }

// Empty reports whether the sequence holds no instructions.
func (s *InsnSeq) Empty() bool { return len(s.insns) == 0 }

// Add validates and activates the instruction, then appends it.
func (s *InsnSeq) Add(in *Insn) error {
	_, err := s.add(in, false, "", "")
	return err
}

// Define appends a constructor instruction and stores the entity it builds
// under an auto-uniquified name derived from hint (or the mnemonic when
// hint is empty). Fails with ErrActivation if nothing was built.
func (s *InsnSeq) Define(in *Insn, hint string) (Value, error) {
	return s.add(in, true, "", hint)
}

// DefineNamed is Define with a caller-chosen exact name.
func (s *InsnSeq) DefineNamed(in *Insn, name string) (Value, error) {
	return s.add(in, true, name, "")
}

func (s *InsnSeq) add(in *Insn, bind bool, name, hint string) (Value, error) {
	if s.check != nil {
		checked, err := s.check(in)
		if err != nil {
			return nil, err
		}
		in = checked
	}
	ret, err := in.activate(s.holder)
	if err != nil {
		return nil, err
	}
	s.insns = append(s.insns, in)
	in.declare()
	if bind {
		if ret == nil {
			return nil, fmt.Errorf("%s: %w", in.InsnName(), ErrActivation)
		}
		if name == "" {
			if hint == "" {
				hint = in.InsnName()
			}
			name = s.holder.UniqueName(hint)
		}
		if err := s.holder.Store(name, ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// appendRaw splices instructions without validation or activation. Only the
// dead-exit fold and object loading use it.
func (s *InsnSeq) appendRaw(insns []*Insn) {
	s.insns = append(s.insns, insns...)
}

// ApplyMapping substitutes, for every instruction, every operand slot of
// the given kind according to the mapping. Slots absent from the mapping
// are untouched.
func (s *InsnSeq) ApplyMapping(kind ValueKind, mapping map[Value]Value) {
	for _, in := range s.insns {
		in.applyMapping(kind, mapping)
	}
}

// Transform applies a rewrite to every instruction. The rewrite may drop an
// instruction (nil), replace it one-for-one, or expand it into several.
// Reports whether anything changed, so callers can drive fixed-point
// passes.
func (s *InsnSeq) Transform(fn func(in *Insn) []*Insn) bool {
	changed := false
	out := make([]*Insn, 0, len(s.insns))
	for _, in := range s.insns {
		repl := fn(in)
		if !changed && !(len(repl) == 1 && repl[0] == in) {
			changed = true
		}
		out = append(out, repl...)
	}
	s.insns = out
	return changed
}

// Preamble is an instruction region ordered before all control flow runs.
// It rejects, at insertion time, any instruction with a control-flow or
// ordering dependency.
type Preamble struct {
	InsnSeq
	top bool
}

func newPreamble(holder Holder, top bool) *Preamble {
	p := &Preamble{InsnSeq: newInsnSeq(holder), top: top}
	p.check = p.validate
	return p
}

func (p *Preamble) validate(in *Insn) (*Insn, error) {
	m := in.meta()
	if !m.preambleSafe {
		return nil, fmt.Errorf("%s: %w", in.InsnName(), ErrNotPreambleSafe)
	}
	if m.topOnly && !p.top {
		return nil, fmt.Errorf("%s in function preamble: %w", in.InsnName(), ErrNotPreambleSafe)
	}
	if m.funcOnly && p.top {
		return nil, fmt.Errorf("%s in unit preamble: %w", in.InsnName(), ErrNotPreambleSafe)
	}
	return in, nil
}

// Apply emits the preamble's unit-level effects into the backend writer.
func (p *Preamble) Apply(w FuncWriter) error {
	for _, in := range p.insns {
		if err := in.applyPreamble(w, p.holder); err != nil {
			return err
		}
	}
	return nil
}
