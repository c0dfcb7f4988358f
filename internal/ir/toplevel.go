package ir

import (
	"fmt"
	"strings"
)

// PragmaEntry is one (key, value) directive recorded on a unit.
type PragmaEntry struct {
	Key   string
	Value string
}

// Pragma handles one pragma key: repeated occurrences reduce associatively
// before the reduced value is applied once at end of unit.
type Pragma interface {
	Reduce(acc, val string) (string, error)
	Apply(top *TopLevel, val string) (any, error)
}

// TopLevel is one compilation unit: the root scope of functions, globals
// and utility entities, the unit preamble, and the pragma list.
type TopLevel struct {
	varHolder
	preamble *Preamble
	pragmas  []PragmaEntry
	finished bool
}

// NewTopLevel creates an empty unit seeded with the well-known utility
// entities.
func NewTopLevel() *TopLevel {
	t := newBareTopLevel()
	t.scope.Set("pos_util", &UtilEntity{Name: "pos_util"})
	t.scope.Set("_global_entity", &UtilEntity{Name: "_global_entity"})
	return t
}

// newBareTopLevel builds a unit without the seeded entities. Object loading
// restores scope contents verbatim and must not double-seed.
func newBareTopLevel() *TopLevel {
	t := &TopLevel{}
	t.scope = NewScope(nil)
	t.preamble = newPreamble(t, true)
	return t
}

// Preamble returns the unit preamble.
func (t *TopLevel) Preamble() *Preamble { return t.preamble }

// Finished reports whether the unit was closed.
func (t *TopLevel) Finished() bool { return t.finished }

// Pragmas returns the recorded directives in order.
func (t *TopLevel) Pragmas() []PragmaEntry { return t.pragmas }

// AddPragma records a unit directive.
func (t *TopLevel) AddPragma(key, value string) {
	t.pragmas = append(t.pragmas, PragmaEntry{Key: key, Value: value})
}

func (t *TopLevel) createFunc(name string) Value {
	return newIRFunction(name, t)
}

// GetOrCreateFunc resolves a function by name, implicitly declaring it on
// first reference.
func (t *TopLevel) GetOrCreateFunc(name string) VisibleFunction {
	return t.scope.GetOrCreate(name, t.createFunc).(VisibleFunction)
}

// CreateFunction declares a fresh function under a uniquified name.
func (t *TopLevel) CreateFunction(hint string) *IRFunction {
	return t.Unique(hint, t.createFunc).(*IRFunction)
}

// DefineFunction resolves a name to a genuine function. When the name is
// currently an extern stub, a real function replaces it, inherits the
// stub's signature expectation, and every block in the unit rewrites its
// references from the stub to the definition.
func (t *TopLevel) DefineFunction(name string) (*IRFunction, error) {
	fn := t.GetOrCreateFunc(name)
	ext, ok := fn.(*ExternFunction)
	if !ok {
		real, ok := fn.(*IRFunction)
		if !ok {
			return nil, fmt.Errorf("%q is not a function: %w", name, ErrDuplicateName)
		}
		return real, nil
	}
	real := newIRFunction(name, t)
	t.scope.Set(name, real)
	if err := real.ExpectSignature(ext); err != nil {
		return nil, err
	}
	mapping := map[Value]Value{ext: real}
	t.scope.Each(func(_ string, v Value) {
		if other, ok := v.(*IRFunction); ok {
			for _, b := range other.AllBlocks() {
				b.ApplyMapping(KindExtern, mapping)
			}
		}
	})
	return real, nil
}

// CreateGlobal declares a global variable through the unit preamble.
func (t *TopLevel) CreateGlobal(hint string, vt VarType) (*Variable, error) {
	v, err := t.preamble.Define(NewDefineGlobal(vt), hint)
	if err != nil {
		return nil, err
	}
	return v.(*Variable), nil
}

// CreateEvent declares a named event through the unit preamble.
func (t *TopLevel) CreateEvent(name string) (*EventRef, error) {
	v, err := t.preamble.Define(NewCreateEvent(name), "event")
	if err != nil {
		return nil, err
	}
	return v.(*EventRef), nil
}

// LookupFunc resolves a name to a visible function. Returns nil without
// error when the name is unbound.
func (t *TopLevel) LookupFunc(name string) (VisibleFunction, error) {
	v := t.Lookup(name)
	if v == nil {
		return nil, nil
	}
	fn, ok := v.(VisibleFunction)
	if !ok {
		return nil, fmt.Errorf("%q is not a function: %w", name, ErrNameNotFound)
	}
	return fn, nil
}

// VisibleFunctions returns the unit's visible functions in scope order,
// paired with their scope names.
func (t *TopLevel) VisibleFunctions() ([]string, []VisibleFunction) {
	var names []string
	var fns []VisibleFunction
	t.scope.Each(func(name string, v Value) {
		if fn, ok := v.(VisibleFunction); ok {
			names = append(names, name)
			fns = append(fns, fn)
		}
	})
	return names, fns
}

// IncludeFrom imports every non-underscore-prefixed visible symbol of the
// other unit as an extern stub with the same global name and signature: the
// forward-declaration mechanism for separate compilation.
func (t *TopLevel) IncludeFrom(other *TopLevel) {
	other.scope.Each(func(name string, v Value) {
		fn, ok := v.(VisibleFunction)
		if !ok || strings.HasPrefix(name, "__") {
			return
		}
		t.scope.Set(name, NewExternFunction(fn.GlobalName(), fn.Params(), fn.Returns()))
	})
}

// End closes the unit, failing if any visible function was never finished.
func (t *TopLevel) End() error {
	if t.finished {
		return fmt.Errorf("unit already finished: %w", ErrFunctionState)
	}
	names, fns := t.VisibleFunctions()
	for i, fn := range fns {
		if !fn.Finished() {
			return fmt.Errorf("%s: %w", names[i], ErrUnfinishedFunction)
		}
	}
	t.finished = true
	return nil
}

// Writeout emits the closed unit into the backend writer: preamble effects,
// the unit-wide function table, then every function body. A failing
// function is reported under its own name, and the scratch pool must drain
// completely.
func (t *TopLevel) Writeout(w FuncWriter) error {
	if !t.finished {
		return fmt.Errorf("unit not finished: %w", ErrFunctionState)
	}
	if err := t.preamble.Apply(w); err != nil {
		return err
	}

	var table []string
	names, fns := t.VisibleFunctions()
	for _, fn := range fns {
		table = append(table, fn.FuncTable()...)
	}
	if err := w.WriteFuncTable(table); err != nil {
		return err
	}

	temps := NewTempPool(w)
	if err := w.WriteObjective("success_tracker", ""); err != nil {
		return err
	}
	for i, fn := range fns {
		if err := fn.Writeout(w, temps); err != nil {
			return fmt.Errorf("function %s: %w", names[i], err)
		}
	}
	return temps.Finish()
}

// RunPragmas reduces repeated occurrences of each pragma key and applies
// every reduced value once. Unknown keys fail.
func (t *TopLevel) RunPragmas(known map[string]Pragma) (map[string]any, error) {
	var order []string
	final := make(map[string]string)
	for _, p := range t.pragmas {
		handler, ok := known[p.Key]
		if !ok {
			return nil, fmt.Errorf("%q: %w", p.Key, ErrUnknownPragma)
		}
		if acc, seen := final[p.Key]; seen {
			reduced, err := handler.Reduce(acc, p.Value)
			if err != nil {
				return nil, fmt.Errorf("pragma %q: %w", p.Key, err)
			}
			final[p.Key] = reduced
		} else {
			final[p.Key] = p.Value
			order = append(order, p.Key)
		}
	}
	results := make(map[string]any, len(final))
	for _, key := range order {
		res, err := known[key].Apply(t, final[key])
		if err != nil {
			return nil, fmt.Errorf("pragma %q: %w", key, err)
		}
		results[key] = res
	}
	return results, nil
}
