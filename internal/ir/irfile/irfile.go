// Package irfile reads modules written as YAML. Each instruction is a small
// mapping naming its result, opcode, type and operands:
//
//	functions:
//	  - name: f
//	    params: [{name: sp, type: i64}]
//	    stack_pointer: 0
//	    blocks:
//	      - name: entry
//	        instrs:
//	          - {def: a, op: add, type: i64, args: ["%sp", "8"]}
//	          - {def: p, op: inttoptr, type: "i32*", args: ["%a"]}
//	          - {def: v, op: load, args: ["%p"]}
//	          - {op: ret}
//
// Operands are "%name" for parameters and earlier results, decimal integers
// for constants, and "undef".
package irfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stackframe/internal/ir"
)

type File struct {
	Module    string      `yaml:"module"`
	Layout    *LayoutSpec `yaml:"layout,omitempty"`
	Functions []Function  `yaml:"functions"`
}

type LayoutSpec struct {
	PointerSize uint64 `yaml:"pointer_size"`
	MaxAlign    uint64 `yaml:"max_align"`
}

type Function struct {
	Name   string  `yaml:"name"`
	Ret    string  `yaml:"ret,omitempty"`
	Params []Param `yaml:"params"`
	// StackPointer is the index of the stack pointer parameter.
	StackPointer *int    `yaml:"stack_pointer,omitempty"`
	Blocks       []Block `yaml:"blocks,omitempty"`
}

type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type Block struct {
	Name   string  `yaml:"name"`
	Instrs []Instr `yaml:"instrs"`
}

type Instr struct {
	Def    string   `yaml:"def,omitempty"`
	Op     string   `yaml:"op"`
	Type   string   `yaml:"type,omitempty"`
	Callee string   `yaml:"callee,omitempty"`
	Args   []string `yaml:"args,omitempty"`
}

// LoadFile reads and builds the module stored at path.
func LoadFile(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ir file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load decodes a YAML module from r. Unknown keys are rejected.
func Load(r io.Reader) (*ir.Module, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode ir file: %w", err)
	}
	return f.Build()
}

// Build turns the decoded file into a module.
func (f *File) Build() (*ir.Module, error) {
	var layout ir.Layout
	if f.Layout != nil {
		dl := &ir.DataLayout{PointerSize: f.Layout.PointerSize, MaxAlign: f.Layout.MaxAlign}
		if dl.PointerSize == 0 {
			dl.PointerSize = 8
		}
		if dl.MaxAlign == 0 {
			dl.MaxAlign = 16
		}
		layout = dl
	}
	m := ir.NewModule(f.Module, layout)
	for i := range f.Functions {
		fn, err := f.Functions[i].build()
		if err != nil {
			return nil, err
		}
		m.AddFunction(fn)
	}
	return m, nil
}

type scope struct {
	fn     *ir.Function
	values map[string]ir.Value
}

func (spec *Function) build() (*ir.Function, error) {
	ret := ir.Void
	if spec.Ret != "" {
		t, err := ir.ParseType(spec.Ret)
		if err != nil {
			return nil, fmt.Errorf("function %s: return type: %w", spec.Name, err)
		}
		ret = t
	}
	names := make([]string, len(spec.Params))
	types := make([]ir.Type, len(spec.Params))
	for i, p := range spec.Params {
		t, err := ir.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("function %s: parameter %d: %w", spec.Name, i, err)
		}
		names[i], types[i] = p.Name, t
	}
	fn := ir.NewFunction(spec.Name, ret, names, types...)
	if spec.StackPointer != nil {
		if fn.Param(*spec.StackPointer) == nil {
			return nil, fmt.Errorf("function %s: stack pointer index %d out of range", spec.Name, *spec.StackPointer)
		}
		ir.SetStackPointerArgument(fn, *spec.StackPointer)
	}

	sc := &scope{fn: fn, values: make(map[string]ir.Value)}
	for _, p := range fn.Params {
		sc.values[p.Name] = p
	}
	for _, blk := range spec.Blocks {
		b := ir.NewBuilder(fn.NewBlock(blk.Name))
		for i, in := range blk.Instrs {
			inst, err := sc.build(b, in)
			if err != nil {
				return nil, fmt.Errorf("function %s: block %s: instruction %d (%s): %w", spec.Name, blk.Name, i, in.Op, err)
			}
			if in.Def != "" {
				if _, dup := sc.values[in.Def]; dup {
					return nil, fmt.Errorf("function %s: %%%s defined twice", spec.Name, in.Def)
				}
				sc.values[in.Def] = inst
			}
		}
	}
	return fn, nil
}

func (sc *scope) build(b *ir.Builder, in Instr) (*ir.Instruction, error) {
	op, ok := ir.LookupOp(in.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", in.Op)
	}
	var typ ir.Type
	if in.Type != "" {
		t, err := ir.ParseType(in.Type)
		if err != nil {
			return nil, err
		}
		typ = t
	}

	switch {
	case op.IsBinary():
		if err := want(in, typ, 2); err != nil {
			return nil, err
		}
		args, err := sc.operands(in.Args, typ, typ)
		if err != nil {
			return nil, err
		}
		for _, a := range args {
			if !ir.Equal(a.Type(), typ) {
				return nil, fmt.Errorf("%s operand %s is not %s", in.Op, ir.Typed(a), typ)
			}
		}
		return b.Binary(op, args[0], args[1], in.Def), nil
	case op.IsCast():
		if err := want(in, typ, 1); err != nil {
			return nil, err
		}
		args, err := sc.operands(in.Args, ir.I64)
		if err != nil {
			return nil, err
		}
		return b.Cast(op, args[0], typ, in.Def), nil
	}

	switch op {
	case ir.OpLoad:
		if len(in.Args) != 1 {
			return nil, fmt.Errorf("load takes 1 operand, got %d", len(in.Args))
		}
		ptr, err := sc.pointer(in.Args[0])
		if err != nil {
			return nil, err
		}
		if typ != nil && !ir.Equal(typ, ir.ElemOf(ptr.Type())) {
			return nil, fmt.Errorf("load of %s through %s", typ, ir.Typed(ptr))
		}
		return b.Load(ptr, in.Def), nil
	case ir.OpStore:
		if len(in.Args) != 2 {
			return nil, fmt.Errorf("store takes 2 operands, got %d", len(in.Args))
		}
		ptr, err := sc.pointer(in.Args[1])
		if err != nil {
			return nil, err
		}
		v, err := sc.operand(in.Args[0], ir.ElemOf(ptr.Type()))
		if err != nil {
			return nil, err
		}
		return b.Store(v, ptr), nil
	case ir.OpGEP:
		if len(in.Args) < 2 {
			return nil, fmt.Errorf("getelementptr takes a pointer and indices")
		}
		ptr, err := sc.pointer(in.Args[0])
		if err != nil {
			return nil, err
		}
		indices := make([]ir.Value, len(in.Args)-1)
		for i, arg := range in.Args[1:] {
			t := ir.I32
			if i == 0 {
				t = ir.I64
			}
			if indices[i], err = sc.operand(arg, t); err != nil {
				return nil, err
			}
		}
		if ir.IndexedType(ptr.Type(), indices) == nil {
			return nil, fmt.Errorf("invalid indices over %s", ir.Typed(ptr))
		}
		return b.GEP(ptr, indices, in.Def), nil
	case ir.OpAlloca:
		if typ == nil {
			return nil, fmt.Errorf("alloca needs a type")
		}
		return b.Alloca(typ, in.Def), nil
	case ir.OpCall:
		if in.Callee == "" {
			return nil, fmt.Errorf("call needs a callee")
		}
		if typ == nil {
			typ = ir.Void
		}
		args, err := sc.operands(in.Args, ir.I64)
		if err != nil {
			return nil, err
		}
		return b.Call(in.Callee, typ, args, in.Def), nil
	case ir.OpPhi:
		if typ == nil {
			return nil, fmt.Errorf("phi needs a type")
		}
		args, err := sc.operands(in.Args, typ)
		if err != nil {
			return nil, err
		}
		return b.Phi(typ, args, in.Def), nil
	case ir.OpRet:
		if len(in.Args) == 0 {
			return b.Ret(nil), nil
		}
		v, err := sc.operand(in.Args[0], sc.fn.ReturnType)
		if err != nil {
			return nil, err
		}
		return b.Ret(v), nil
	}
	return nil, fmt.Errorf("opcode %s cannot be written in an ir file", op)
}

func want(in Instr, typ ir.Type, n int) error {
	if typ == nil {
		return fmt.Errorf("%s needs a type", in.Op)
	}
	if len(in.Args) != n {
		return fmt.Errorf("%s takes %d operands, got %d", in.Op, n, len(in.Args))
	}
	return nil
}

// operands resolves args; literal i takes types[i], or the last type given.
func (sc *scope) operands(args []string, types ...ir.Type) ([]ir.Value, error) {
	out := make([]ir.Value, len(args))
	for i, arg := range args {
		t := types[min(i, len(types)-1)]
		v, err := sc.operand(arg, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (sc *scope) operand(arg string, t ir.Type) (ir.Value, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case strings.HasPrefix(arg, "%"):
		v, ok := sc.values[arg[1:]]
		if !ok {
			return nil, fmt.Errorf("undefined value %s", arg)
		}
		return v, nil
	case arg == "undef":
		if t == nil {
			return nil, fmt.Errorf("undef of unknown type")
		}
		return ir.NewUndef(t), nil
	}
	n, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("bad operand %q", arg)
	}
	it, ok := t.(*ir.IntType)
	if !ok {
		return nil, fmt.Errorf("integer %s used as %v", arg, t)
	}
	return ir.ConstInt(it, n), nil
}

func (sc *scope) pointer(arg string) (ir.Value, error) {
	v, err := sc.operand(arg, nil)
	if err != nil {
		return nil, err
	}
	if ir.ElemOf(v.Type()) == nil {
		return nil, fmt.Errorf("%s is not a pointer", ir.Typed(v))
	}
	return v, nil
}
