package ir

import (
	"fmt"
	"slices"
	"strconv"
)

// Module is a set of functions sharing one data layout.
type Module struct {
	Name      string
	Layout    Layout
	Functions []*Function
}

func NewModule(name string, layout Layout) *Module {
	if layout == nil {
		layout = DefaultLayout
	}
	return &Module{Name: name, Layout: layout}
}

// Function returns the function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Function is a list of basic blocks; the first one is the entry block.
type Function struct {
	Name       string
	ReturnType Type
	Params     []*Param
	Blocks     []*Block

	nextSlot int
	meta     map[string]any
}

// NewFunction creates a function with one parameter per type; parameter
// names may be empty.
func NewFunction(name string, ret Type, names []string, types ...Type) *Function {
	fn := &Function{Name: name, ReturnType: ret}
	for i, t := range types {
		p := &Param{Index: i, typ: t, fn: fn}
		if i < len(names) && names[i] != "" {
			p.Name = names[i]
		} else {
			p.Name = "arg" + strconv.Itoa(i)
		}
		fn.Params = append(fn.Params, p)
	}
	return fn
}

// AddFunction appends fn to the module.
func (m *Module) AddFunction(fn *Function) *Function {
	m.Functions = append(m.Functions, fn)
	return fn
}

// Param returns parameter i, or nil when out of range.
func (fn *Function) Param(i int) *Param {
	if i < 0 || i >= len(fn.Params) {
		return nil
	}
	return fn.Params[i]
}

// NewBlock appends an empty block.
func (fn *Function) NewBlock(name string) *Block {
	b := &Block{Name: name, fn: fn}
	fn.Blocks = append(fn.Blocks, b)
	return b
}

// Entry returns the entry block, or nil for a declaration.
func (fn *Function) Entry() *Block {
	if len(fn.Blocks) == 0 {
		return nil
	}
	return fn.Blocks[0]
}

// Instructions returns all instructions in block order.
func (fn *Function) Instructions() []*Instruction {
	var all []*Instruction
	for _, b := range fn.Blocks {
		all = append(all, b.Instrs...)
	}
	return all
}

func (fn *Function) name(inst *Instruction) {
	if inst.Name != "" || !inst.ProducesValue() {
		return
	}
	inst.Name = strconv.Itoa(fn.nextSlot)
	fn.nextSlot++
}

// Block is a straight-line sequence of instructions.
type Block struct {
	Name   string
	Instrs []*Instruction
	fn     *Function
}

func (b *Block) Function() *Function { return b.fn }

// Append adds inst at the end of the block.
func (b *Block) Append(inst *Instruction) *Instruction {
	return b.insertAt(len(b.Instrs), inst)
}

// InsertBefore adds inst right before pos, which must belong to b.
func (b *Block) InsertBefore(pos, inst *Instruction) *Instruction {
	i := slices.Index(b.Instrs, pos)
	if i < 0 {
		panic(fmt.Sprintf("ir: %s is not in block %s", pos.Ref(), b.Name))
	}
	return b.insertAt(i, inst)
}

// InsertAfter adds inst right after pos, which must belong to b.
func (b *Block) InsertAfter(pos, inst *Instruction) *Instruction {
	i := slices.Index(b.Instrs, pos)
	if i < 0 {
		panic(fmt.Sprintf("ir: %s is not in block %s", pos.Ref(), b.Name))
	}
	return b.insertAt(i+1, inst)
}

// FirstInsertionPoint returns the first instruction that is not a phi, or
// nil when the block has none.
func (b *Block) FirstInsertionPoint() *Instruction {
	for _, inst := range b.Instrs {
		if inst.Op != OpPhi {
			return inst
		}
	}
	return nil
}

func (b *Block) insertAt(i int, inst *Instruction) *Instruction {
	if inst.block != nil {
		panic(fmt.Sprintf("ir: %s is already inserted", inst.Ref()))
	}
	inst.block = b
	b.Instrs = slices.Insert(b.Instrs, i, inst)
	if b.fn != nil {
		b.fn.name(inst)
	}
	return inst
}

func (b *Block) remove(inst *Instruction) {
	if i := slices.Index(b.Instrs, inst); i >= 0 {
		b.Instrs = slices.Delete(b.Instrs, i, i+1)
	}
	inst.block = nil
}
