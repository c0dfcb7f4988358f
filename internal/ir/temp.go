package ir

import (
	"fmt"
	"strconv"
)

// TempPool is the write-out-time scratch cell pool: a bounded free list of
// named scratch objectives keyed by a monotonically increasing counter.
// Each cell supports exactly one in-flight checkout at a time, and the unit
// writeout asserts the pool is fully drained at the end.
type TempPool struct {
	free    []string
	inUse   map[string]bool
	counter int
	w       FuncWriter
}

// NewTempPool creates an empty pool that declares freshly minted cells
// through the writer.
func NewTempPool(w FuncWriter) *TempPool {
	return &TempPool{inUse: make(map[string]bool), w: w}
}

// Allocate pops a free cell or mints a new one.
func (p *TempPool) Allocate() (string, error) {
	var name string
	if len(p.free) == 0 {
		name = "temp_" + strconv.Itoa(p.counter)
		p.counter++
		if err := p.w.WriteObjective(name, ""); err != nil {
			return "", err
		}
	} else {
		name = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	}
	p.inUse[name] = true
	return name, nil
}

// Free returns a cell to the pool, failing if it was not checked out.
func (p *TempPool) Free(name string) error {
	if !p.inUse[name] {
		return fmt.Errorf("free of %q: %w", name, ErrTempPool)
	}
	delete(p.inUse, name)
	p.free = append(p.free, name)
	return nil
}

// Finish asserts every cell was returned.
func (p *TempPool) Finish() error {
	if len(p.inUse) != 0 {
		return fmt.Errorf("%d cells still checked out: %w", len(p.inUse), ErrTempPool)
	}
	return nil
}
