// Package pack is the reference backend: it collects a written-out unit as
// a function-per-file text tree plus a setup script and can flush the tree
// to disk.
package pack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cmdc/internal/ir"
)

// Writer implements ir.FuncWriter by accumulating everything in memory.
// WriteTo flushes the collected tree under a directory.
type Writer struct {
	namespace string
	order     []string
	funcs     map[string][]string
	table     []string
	setup     []string
}

// NewWriter creates a collector emitting under the given namespace.
func NewWriter(namespace string) *Writer {
	if namespace == "" {
		namespace = "cmdc"
	}
	return &Writer{
		namespace: namespace,
		funcs:     make(map[string][]string),
	}
}

// Namespace returns the emission namespace.
func (w *Writer) Namespace() string { return w.namespace }

// WriteFuncTable records the unit-wide table of generated names.
func (w *Writer) WriteFuncTable(table []string) error {
	w.table = append(w.table, table...)
	return nil
}

// WriteFunction records one block's command stream. A name may only be
// written once per unit.
func (w *Writer) WriteFunction(name string, cmds []string) error {
	if _, dup := w.funcs[name]; dup {
		return fmt.Errorf("function %q emitted twice", name)
	}
	w.order = append(w.order, name)
	w.funcs[name] = cmds
	return nil
}

// WriteEventHandler binds a handler to its event in the setup script.
func (w *Writer) WriteEventHandler(handler ir.VisibleFunction, ev *ir.EventRef) error {
	line := "bind " + ev.Name + " function " + w.namespace + ":" + handler.GlobalName()
	for _, cond := range ev.Conditions {
		line += " if " + cond.Path + "=" + cond.Value
	}
	w.setup = append(w.setup, line)
	return nil
}

// WriteSetupFunction schedules a function to run once during setup.
func (w *Writer) WriteSetupFunction(fn ir.VisibleFunction) error {
	w.setup = append(w.setup, "function "+w.namespace+":"+fn.GlobalName())
	return nil
}

// WriteObjective declares a counter. Empty criteria defaults to dummy.
func (w *Writer) WriteObjective(name, criteria string) error {
	if criteria == "" {
		criteria = "dummy"
	}
	w.setup = append(w.setup, "scoreboard objectives add "+name+" "+criteria)
	return nil
}

// WriteTeam declares a team.
func (w *Writer) WriteTeam(name, display string) error {
	line := "team add " + name
	if display != "" {
		line += " " + quoteDisplay(display)
	}
	w.setup = append(w.setup, line)
	return nil
}

// WriteBossbar declares a bossbar.
func (w *Writer) WriteBossbar(name, display string) error {
	line := "bossbar add " + w.namespace + ":" + name
	if display != "" {
		line += " " + quoteDisplay(display)
	}
	w.setup = append(w.setup, line)
	return nil
}

func quoteDisplay(s string) string {
	return `{"text": "` + strings.ReplaceAll(s, `"`, `\"`) + `"}`
}

// Functions returns the recorded function names in emission order.
func (w *Writer) Functions() []string { return w.order }

// Commands returns the command stream recorded for a name, or nil.
func (w *Writer) Commands(name string) []string { return w.funcs[name] }

// Setup returns the collected setup script.
func (w *Writer) Setup() []string { return w.setup }

// FuncTable returns the collected name table.
func (w *Writer) FuncTable() []string { return w.table }

// WriteTo flushes the collected tree under dir: one .mcfunction file per
// recorded function beneath functions/, the setup script, and the name
// table. Block names contain slashes and map onto subdirectories.
func (w *Writer) WriteTo(dir string) error {
	root := filepath.Join(dir, w.namespace)
	for _, name := range w.order {
		path := filepath.Join(root, "functions", filepath.FromSlash(name)+".mcfunction")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		body := strings.Join(w.funcs[name], "\n")
		if body != "" {
			body += "\n"
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	setup := filepath.Join(root, "functions", "setup.mcfunction")
	if err := os.MkdirAll(filepath.Dir(setup), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(setup, []byte(joinLines(w.setup)), 0o644); err != nil {
		return err
	}
	table := filepath.Join(root, "functable.txt")
	return os.WriteFile(table, []byte(joinLines(w.table)), 0o644)
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
