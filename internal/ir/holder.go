package ir

import (
	"fmt"
	"strconv"
)

// Holder is the naming capability an instruction sequence binds entities
// through. TopLevel and IRFunction both satisfy it.
type Holder interface {
	UniqueName(hint string) string
	Store(name string, v Value) error
	NameFor(v Value) (string, error)
}

// varHolder is the shared naming/storage behavior of TopLevel and
// IRFunction: unique-name synthesis, duplicate-free storage, reverse lookup
// and scope-wide rewriting.
type varHolder struct {
	scope *Scope
}

// Scope exposes the holder's scope.
func (h *varHolder) Scope() *Scope { return h.scope }

// UniqueName returns hint if free in the whole chain, otherwise hint0,
// hint1, ... until a free name is found.
func (h *varHolder) UniqueName(hint string) string {
	if !h.scope.Contains(hint) {
		return hint
	}
	for i := 0; ; i++ {
		name := hint + strconv.Itoa(i)
		if !h.scope.Contains(name) {
			return name
		}
	}
}

// Unique allocates a unique name from hint and stores the factory's result
// under it.
func (h *varHolder) Unique(hint string, factory func(name string) Value) Value {
	name := h.UniqueName(hint)
	v := factory(name)
	h.scope.Set(name, v)
	return v
}

// GenerateName stores v under a uniquified variant of hint.
func (h *varHolder) GenerateName(hint string, v Value) Value {
	return h.Unique(hint, func(string) Value { return v })
}

// Store writes a name directly, rejecting duplicate local definitions.
func (h *varHolder) Store(name string, v Value) error {
	if h.scope.ContainsLocal(name) {
		return fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}
	h.scope.Set(name, v)
	return nil
}

// NameFor returns the name v was assigned anywhere in the chain.
func (h *varHolder) NameFor(v Value) (string, error) {
	return h.scope.ForValue(v, true)
}

// GetVar resolves a name through the chain.
func (h *varHolder) GetVar(name string) (Value, error) {
	return h.scope.Get(name)
}

// Lookup resolves a name, returning nil when absent.
func (h *varHolder) Lookup(name string) Value {
	v, err := h.scope.Get(name)
	if err != nil {
		return nil
	}
	return v
}

// TransformScope applies a rewrite to every local entry in order. Returning
// an empty name deletes the entry. Reports whether anything changed.
func (h *varHolder) TransformScope(fn func(name string, v Value) (string, Value)) bool {
	changed := false
	for _, name := range h.scope.Names() {
		v, err := h.scope.GetLocal(name)
		if err != nil {
			continue
		}
		newName, newV := fn(name, v)
		if newName == name && newV == v {
			continue
		}
		changed = true
		h.scope.Delete(name)
		if newName == "" {
			continue
		}
		h.scope.Set(newName, newV)
	}
	return changed
}

// ResetVarUsage clears the usage counters of every variable in the scope.
func (h *varHolder) ResetVarUsage() {
	h.scope.Each(func(_ string, v Value) {
		if vr, ok := v.(*Variable); ok {
			vr.ResetUsage()
		}
	})
}
