package ir

import "fmt"

// InlineInto splices this function's body into another function. Every
// source block gets a fresh block in the target, by-value variable
// arguments materialize a copy at the mapped entry, by-reference arguments
// alias the caller's storage, and return variables bind to the supplied
// destinations (nil discards the result). Only inline-copyable
// instructions survive the replay. Returns the mapped entry and exit
// blocks for the caller to splice into its own control flow.
//
// Valid only before either function is variables-finalized.
func (f *IRFunction) InlineInto(other *IRFunction, args []Value, retvars []*Variable) (*BasicBlock, *BasicBlock, error) {
	if err := validateArgs(f, args, retvars); err != nil {
		return nil, nil, fmt.Errorf("inline %s: %w", f.name, err)
	}
	if f.varsFinalized {
		return nil, nil, fmt.Errorf("inline %s: source finalized: %w", f.name, ErrFunctionState)
	}
	if other.varsFinalized {
		return nil, nil, fmt.Errorf("inline %s: target finalized: %w", f.name, ErrFunctionState)
	}
	for _, in := range f.postExit {
		// Only deferred-callback exits inline cleanly.
		if in.Kind != InsnRunDeferredCallback {
			return nil, nil, fmt.Errorf("inline %s: post-exit %s: %w", f.name, in.InsnName(), ErrFunctionState)
		}
	}

	type blockPair struct{ src, dst *BasicBlock }
	var blockPairs []blockPair
	mapping := make(map[Value]Value)
	argIdx, retIdx := 0, 0
	var entryInsns []*Insn

	var scopeErr error
	f.scope.Each(func(name string, v Value) {
		if scopeErr != nil {
			return
		}
		switch src := v.(type) {
		case *BasicBlock:
			dst := other.CreateBlock(src.name)
			dst.IsFunction = src.IsFunction
			dst.Defined = src.Defined
			mapping[src] = dst
			blockPairs = append(blockPairs, blockPair{src: src, dst: dst})
		case *Variable:
			switch src.Role {
			case RoleParam:
				arg := args[argIdx]
				argIdx++
				switch a := arg.(type) {
				case IntLit, FloatLit:
					if src.Mode != ByValue {
						scopeErr = fmt.Errorf("literal on by-reference parameter: %w", ErrBadArgs)
						return
					}
					mapping[src] = arg
				case *Variable:
					if src.Mode == ByValue {
						// The callee must not alias the caller's
						// storage.
						argName, err := other.NameFor(a)
						if err != nil {
							scopeErr = err
							return
						}
						copyVar, err := other.CreateVar(argName+"_copy", a.Type)
						if err != nil {
							scopeErr = err
							return
						}
						entryInsns = append(entryInsns, NewAssign(copyVar, a))
						mapping[src] = copyVar
					} else {
						mapping[src] = a
					}
				}
			case RoleReturn:
				dst := retvars[retIdx]
				retIdx++
				if dst == nil {
					mapping[src] = nil
				} else {
					mapping[src] = dst
				}
			}
		}
	})
	if scopeErr != nil {
		return nil, nil, fmt.Errorf("inline %s: %w", f.name, scopeErr)
	}

	if err := inlineSeq(f, &f.preamble.InsnSeq, &other.preamble.InsnSeq, mapping); err != nil {
		return nil, nil, fmt.Errorf("inline %s: %w", f.name, err)
	}

	entryBlock := mapping[f.Blocks()[0]].(*BasicBlock)
	for _, in := range entryInsns {
		if err := entryBlock.Add(in); err != nil {
			return nil, nil, fmt.Errorf("inline %s: %w", f.name, err)
		}
	}

	for _, pair := range blockPairs {
		if err := inlineSeq(f, &pair.src.InsnSeq, &pair.dst.InsnSeq, mapping); err != nil {
			return nil, nil, fmt.Errorf("inline %s: %w", f.name, err)
		}
	}

	exitBlock := mapping[f.exit].(*BasicBlock)
	return entryBlock, exitBlock, nil
}

// inlineSeq replays one sequence into its mapped target: each copyable
// instruction is cloned with the substitution applied, and each constructor
// re-defines its entity in the target so later instructions pick up the
// fresh mapping.
func inlineSeq(src *IRFunction, from, to *InsnSeq, mapping map[Value]Value) error {
	for _, in := range from.Insns() {
		if !in.InlineCopyable() {
			continue
		}
		clone := in.copyWithChanges(mapping)
		if in.Constructor() {
			name, err := src.NameFor(in.built)
			if err != nil {
				return err
			}
			built, err := to.Define(clone, name)
			if err != nil {
				return err
			}
			mapping[in.built] = built
		} else {
			if _, err := to.add(clone, false, "", ""); err != nil {
				return err
			}
		}
	}
	return nil
}
