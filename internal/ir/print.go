package ir

import (
	"fmt"
	"strings"
)

// String prints the module in an LLVM-like textual form.
func (m *Module) String() string {
	var sb strings.Builder
	if m.Name != "" {
		fmt.Fprintf(&sb, "; module %s\n", m.Name)
	}
	for i, fn := range m.Functions {
		if i > 0 || m.Name != "" {
			sb.WriteString("\n")
		}
		sb.WriteString(fn.String())
	}
	return sb.String()
}

func (fn *Function) String() string {
	var sb strings.Builder
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = Typed(p)
	}
	ret := fn.ReturnType
	if ret == nil {
		ret = Void
	}
	kw := "define"
	if len(fn.Blocks) == 0 {
		kw = "declare"
	}
	fmt.Fprintf(&sb, "%s %s @%s(%s)", kw, ret, fn.Name, strings.Join(params, ", "))
	if index, ok := StackPointerArgument(fn); ok {
		fmt.Fprintf(&sb, " !%s %d", mdStackPointer, index)
	}
	if len(fn.Blocks) == 0 {
		sb.WriteString("\n")
		return sb.String()
	}
	sb.WriteString(" {\n")
	for i, b := range fn.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for _, inst := range b.Instrs {
			sb.WriteString("  ")
			sb.WriteString(inst.String())
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (inst *Instruction) String() string {
	var sb strings.Builder
	if inst.ProducesValue() {
		fmt.Fprintf(&sb, "%s = ", inst.Ref())
	}
	ops := inst.operands
	switch {
	case inst.Op.IsBinary():
		fmt.Fprintf(&sb, "%s %s, %s", inst.Op, Typed(ops[0]), ops[1].Ref())
	case inst.Op.IsCast():
		fmt.Fprintf(&sb, "%s %s to %s", inst.Op, Typed(ops[0]), inst.typ)
	default:
		switch inst.Op {
		case OpLoad:
			fmt.Fprintf(&sb, "load %s, %s", inst.typ, Typed(ops[0]))
		case OpStore:
			fmt.Fprintf(&sb, "store %s, %s", Typed(ops[0]), Typed(ops[1]))
		case OpGEP:
			fmt.Fprintf(&sb, "getelementptr %s, %s", ElemOf(ops[0].Type()), joinTyped(ops))
		case OpAlloca:
			fmt.Fprintf(&sb, "alloca %s", inst.Allocated)
		case OpCall:
			fmt.Fprintf(&sb, "call %s @%s(%s)", inst.typ, inst.Callee, joinTyped(ops))
		case OpPhi:
			fmt.Fprintf(&sb, "phi %s %s", inst.typ, joinRefs(ops))
		case OpRet:
			if len(ops) == 0 {
				sb.WriteString("ret void")
			} else {
				fmt.Fprintf(&sb, "ret %s", Typed(ops[0]))
			}
		default:
			fmt.Fprintf(&sb, "%s %s", inst.Op, joinTyped(ops))
		}
	}
	if IsStackFrame(inst) {
		fmt.Fprintf(&sb, ", !%s", mdStackFrame)
	}
	return sb.String()
}

func joinTyped(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = Typed(v)
	}
	return strings.Join(parts, ", ")
}

func joinRefs(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = "[ " + v.Ref() + " ]"
	}
	return strings.Join(parts, ", ")
}
