package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize renders the unit as human-readable IR text: the unit preamble
// followed by every visible function. The text is for inspection and golden
// tests; the object format (objfile.go) is the machine interchange.
func (t *TopLevel) Serialize() string {
	parts := []string{t.preamble.serializeText(t)}
	t.scope.Each(func(_ string, v Value) {
		switch fn := v.(type) {
		case *IRFunction:
			parts = append(parts, fn.serializeText())
		case *ExternFunction:
			parts = append(parts, fn.serializeText())
		}
	})
	return strings.Join(parts, "\n")
}

func (p *Preamble) serializeText(holder Holder) string {
	indent := ""
	if !p.top {
		indent = "    "
	}
	var b strings.Builder
	b.WriteString(indent + "preamble {\n")
	for _, in := range p.insns {
		b.WriteString(indent + "    " + serializeInsn(in, holder) + "\n")
	}
	b.WriteString(indent + "}\n")
	return b.String()
}

func (f *IRFunction) serializeText() string {
	blocks := f.Blocks()
	if f.varsFinalized {
		blocks = f.AllBlocks()
	}
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.serializeText()
	}
	return "function " + f.name + " {\n" +
		f.preamble.serializeText(f) + "\n" +
		strings.Join(texts, "\n\n") + "\n}\n"
}

func (b *BasicBlock) serializeText() string {
	lines := make([]string, 0, len(b.insns)+1)
	modifier := ""
	if b.IsFunction {
		modifier = "[function] "
	}
	lines = append(lines, modifier+b.name+":")
	for _, in := range b.insns {
		lines = append(lines, serializeInsn(in, b.fn))
	}
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}

func (e *ExternFunction) serializeText() string {
	params := "NULL"
	if len(e.params) > 0 {
		parts := make([]string, len(e.params))
		for i, p := range e.params {
			parts[i] = p.Type.String() + ":" + p.Mode.String()
		}
		params = "(" + strings.Join(parts, ", ") + ")"
	}
	returns := "NULL"
	if len(e.returns) > 0 {
		parts := make([]string, len(e.returns))
		for i, r := range e.returns {
			parts[i] = r.String()
		}
		returns = "(" + strings.Join(parts, ", ") + ")"
	}
	return "extern function " + e.name + " " + params + " " + returns + "\n"
}

func serializeInsn(in *Insn, holder Holder) string {
	var args []string
	for _, v := range in.Vals {
		args = append(args, serializeValue(v, holder))
	}
	for _, t := range in.Types {
		args = append(args, t.String())
	}
	if in.Kind == InsnDefineParam {
		args = append(args, in.Mode.String())
	}
	if in.Name != "" {
		args = append(args, strconv.Quote(in.Name))
	}
	if in.Aux != "" {
		args = append(args, strconv.Quote(in.Aux))
	}
	if len(args) == 0 {
		return in.InsnName()
	}
	return in.InsnName() + " " + strings.Join(args, ", ")
}

func serializeValue(v Value, holder Holder) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case *Variable:
		if name, err := holder.NameFor(val); err == nil {
			return "$" + name
		}
		return "$?"
	case *BasicBlock:
		return ":" + val.name
	case *IRFunction:
		return "@" + val.name
	case *ExternFunction:
		return "@" + val.name
	case *EventRef:
		return "!" + val.Name
	case *UtilEntity:
		return "%" + val.Name
	case IntLit:
		return strconv.Itoa(int(val))
	case FloatLit:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
