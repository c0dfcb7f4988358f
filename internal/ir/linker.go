package ir

import "fmt"

// Link merges independently compiled units into one. A single unit is
// returned unchanged and un-copied; otherwise the inputs are mutated into
// the merged unit.
//
// The merge is two explicit passes. First every unit is scanned: preambles
// and pragma lists concatenate, genuine definitions keep their own names
// with their scopes re-parented into the merged unit, and extern stubs
// defer into per-name buckets. Then each bucket resolves: a genuine
// definition wins, otherwise the stubs unify into one representative under
// signature equality and stay as an unresolved import. A final sweep
// rewrites every extern operand in every collected block. Collect-then-
// resolve avoids forward-reference ordering problems between units.
func Link(units ...*TopLevel) (*TopLevel, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("no units to link: %w", ErrFunctionState)
	}
	if len(units) == 1 {
		return units[0], nil
	}

	out := NewTopLevel()
	var externOrder []string
	externs := make(map[string][]*ExternFunction)
	var allBlocks []*BasicBlock

	for _, unit := range units {
		if !unit.Finished() {
			return nil, fmt.Errorf("linking unfinished unit: %w", ErrFunctionState)
		}
		out.preamble.appendRaw(unit.preamble.insns)
		out.pragmas = append(out.pragmas, unit.pragmas...)

		var scanErr error
		unit.scope.Each(func(name string, v Value) {
			if scanErr != nil {
				return
			}
			fn, ok := v.(VisibleFunction)
			if !ok {
				// Globals and utility entities move over under
				// uniquified names.
				out.GenerateName(name, v)
				return
			}
			if ext, isExt := fn.(*ExternFunction); isExt {
				if _, seen := externs[name]; !seen {
					externOrder = append(externOrder, name)
				}
				externs[name] = append(externs[name], ext)
				return
			}
			// The scope name of a genuine definition is its global
			// name; a collision here is a duplicate definition.
			if err := out.Store(name, fn); err != nil {
				scanErr = err
				return
			}
			real := fn.(*IRFunction)
			real.scope.SetParent(out.scope)
			allBlocks = append(allBlocks, real.Blocks()...)
		})
		if scanErr != nil {
			return nil, scanErr
		}
	}

	mapping := make(map[Value]Value)
	for _, name := range externOrder {
		bucket := externs[name]
		concrete, err := out.LookupFunc(name)
		if err != nil {
			return nil, err
		}
		var replacement VisibleFunction
		if concrete != nil {
			replacement = concrete
		} else {
			replacement = bucket[0]
		}
		for _, ext := range bucket {
			if err := ext.ExpectSignature(replacement); err != nil {
				return nil, fmt.Errorf("linking %q: %w", name, err)
			}
			if VisibleFunction(ext) != replacement {
				mapping[ext] = replacement
			}
		}
		if concrete == nil {
			// Unresolved import of the merged unit.
			if err := out.Store(name, bucket[0]); err != nil {
				return nil, err
			}
		}
	}

	if len(mapping) > 0 {
		for _, b := range allBlocks {
			b.ApplyMapping(KindExtern, mapping)
		}
	}

	if err := out.End(); err != nil {
		return nil, err
	}
	return out, nil
}
