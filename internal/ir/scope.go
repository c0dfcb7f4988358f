package ir

import "fmt"

// Scope is an insertion-ordered name to value mapping with an inverse value
// to name mapping and an optional parent. Lookups fall through to the
// parent; writes always land in the local scope, shadowing parent entries of
// the same name.
//
// Every stored value must carry exactly one name within the chain it was
// assigned into; storing the same value under two names breaks ForValue.
type Scope struct {
	parent  *Scope
	order   []string
	table   map[string]Value
	inverse map[Value]string
}

// NewScope creates a scope with an optional parent. The parent link is
// non-owning: it is used for name lookup only.
func NewScope(parent *Scope) *Scope {
	return &Scope{
		parent:  parent,
		table:   make(map[string]Value),
		inverse: make(map[Value]string),
	}
}

// Parent returns the enclosing scope, or nil at the root.
func (s *Scope) Parent() *Scope { return s.parent }

// SetParent re-parents the scope. Used by the linker when a function moves
// into a merged unit.
func (s *Scope) SetParent(parent *Scope) { s.parent = parent }

// Get resolves a name through the whole chain.
func (s *Scope) Get(name string) (Value, error) {
	if v, ok := s.table[name]; ok {
		return v, nil
	}
	if s.parent != nil {
		return s.parent.Get(name)
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNameNotFound)
}

// Contains reports whether the name resolves anywhere in the chain.
func (s *Scope) Contains(name string) bool {
	if _, ok := s.table[name]; ok {
		return true
	}
	if s.parent != nil {
		return s.parent.Contains(name)
	}
	return false
}

// GetLocal resolves a name without parent fallback. Used to detect true
// duplicate definitions.
func (s *Scope) GetLocal(name string) (Value, error) {
	if v, ok := s.table[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNameNotFound)
}

// ContainsLocal reports whether the name is defined in this scope level.
func (s *Scope) ContainsLocal(name string) bool {
	_, ok := s.table[name]
	return ok
}

// Set writes a name locally, updating the inverse mapping. Overwriting an
// existing name keeps its position in the insertion order.
func (s *Scope) Set(name string, v Value) {
	if old, ok := s.table[name]; ok {
		delete(s.inverse, old)
	} else {
		s.order = append(s.order, name)
	}
	s.table[name] = v
	s.inverse[v] = name
}

// Delete removes a local entry. Absent names are ignored.
func (s *Scope) Delete(name string) {
	v, ok := s.table[name]
	if !ok {
		return
	}
	delete(s.table, name)
	delete(s.inverse, v)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// GetOrCreate is the single idiomatic path for first-writer-wins
// declarations: if the name resolves anywhere in the chain the existing
// value is returned, otherwise the factory's result is stored locally.
func (s *Scope) GetOrCreate(name string, factory func(name string) Value) Value {
	if s.Contains(name) {
		v, _ := s.Get(name)
		return v
	}
	v := factory(name)
	s.Set(name, v)
	return v
}

// ForValue returns the name a value was assigned into the chain under.
func (s *Scope) ForValue(v Value, searchParent bool) (string, error) {
	if name, ok := s.inverse[v]; ok {
		return name, nil
	}
	if searchParent && s.parent != nil {
		return s.parent.ForValue(v, true)
	}
	return "", fmt.Errorf("%v: %w", v, ErrValueNotFound)
}

// Names returns the local names in insertion order.
func (s *Scope) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Each visits the local entries in insertion order.
func (s *Scope) Each(fn func(name string, v Value)) {
	for _, name := range s.Names() {
		if v, ok := s.table[name]; ok {
			fn(name, v)
		}
	}
}

// Len reports the number of local entries.
func (s *Scope) Len() int { return len(s.table) }
