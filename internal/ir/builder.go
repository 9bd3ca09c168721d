package ir

import "fmt"

// Builder creates instructions at an insertion point: either before a given
// instruction or at the end of a block.
type Builder struct {
	block  *Block
	before *Instruction
}

// NewBuilder appends to the end of b.
func NewBuilder(b *Block) *Builder {
	return &Builder{block: b}
}

// SetInsertPoint makes the builder insert right before inst.
func (bld *Builder) SetInsertPoint(inst *Instruction) {
	bld.block = inst.Block()
	bld.before = inst
}

// SetInsertPointAtEnd makes the builder append to b.
func (bld *Builder) SetInsertPointAtEnd(b *Block) {
	bld.block = b
	bld.before = nil
}

func (bld *Builder) insert(inst *Instruction, name string) *Instruction {
	inst.Name = name
	if bld.before != nil {
		return bld.block.InsertBefore(bld.before, inst)
	}
	return bld.block.Append(inst)
}

func (bld *Builder) binary(op Op, a, b Value, name string) *Instruction {
	if !Equal(a.Type(), b.Type()) {
		panic(fmt.Sprintf("ir: %s operands %s and %s differ in type", op, Typed(a), Typed(b)))
	}
	return bld.insert(newInstruction(op, a.Type(), a, b), name)
}

func (bld *Builder) Add(a, b Value, name string) *Instruction { return bld.binary(OpAdd, a, b, name) }
func (bld *Builder) Sub(a, b Value, name string) *Instruction { return bld.binary(OpSub, a, b, name) }
func (bld *Builder) Mul(a, b Value, name string) *Instruction { return bld.binary(OpMul, a, b, name) }

// Binary creates any binary arithmetic instruction.
func (bld *Builder) Binary(op Op, a, b Value, name string) *Instruction {
	if !op.IsBinary() {
		panic(fmt.Sprintf("ir: %s is not a binary operator", op))
	}
	return bld.binary(op, a, b, name)
}

// Cast creates a conversion of v to t.
func (bld *Builder) Cast(op Op, v Value, t Type, name string) *Instruction {
	if !op.IsCast() {
		panic(fmt.Sprintf("ir: %s is not a cast", op))
	}
	return bld.insert(newInstruction(op, t, v), name)
}

func (bld *Builder) IntToPtr(v Value, t Type, name string) *Instruction {
	return bld.Cast(OpIntToPtr, v, t, name)
}

func (bld *Builder) PtrToInt(v Value, t Type, name string) *Instruction {
	return bld.Cast(OpPtrToInt, v, t, name)
}

func (bld *Builder) BitCast(v Value, t Type, name string) *Instruction {
	return bld.Cast(OpBitCast, v, t, name)
}

// Load reads the pointee of ptr.
func (bld *Builder) Load(ptr Value, name string) *Instruction {
	elem := ElemOf(ptr.Type())
	if elem == nil {
		panic(fmt.Sprintf("ir: load from non-pointer %s", Typed(ptr)))
	}
	return bld.insert(newInstruction(OpLoad, elem, ptr), name)
}

// Store writes v through ptr.
func (bld *Builder) Store(v, ptr Value) *Instruction {
	if ElemOf(ptr.Type()) == nil {
		panic(fmt.Sprintf("ir: store to non-pointer %s", Typed(ptr)))
	}
	return bld.insert(newInstruction(OpStore, Void, v, ptr), "")
}

// GEP computes the address of an element inside the aggregate ptr points to.
func (bld *Builder) GEP(ptr Value, indices []Value, name string) *Instruction {
	elem := IndexedType(ptr.Type(), indices)
	if elem == nil {
		panic(fmt.Sprintf("ir: invalid getelementptr indices over %s", Typed(ptr)))
	}
	ops := append([]Value{ptr}, indices...)
	return bld.insert(newInstruction(OpGEP, Ptr(elem), ops...), name)
}

// Alloca reserves a stack slot of type t.
func (bld *Builder) Alloca(t Type, name string) *Instruction {
	inst := newInstruction(OpAlloca, Ptr(t))
	inst.Allocated = t
	return bld.insert(inst, name)
}

// Call calls the function named callee.
func (bld *Builder) Call(callee string, ret Type, args []Value, name string) *Instruction {
	inst := newInstruction(OpCall, ret, args...)
	inst.Callee = callee
	if ret.Kind() == VoidKind {
		name = ""
	}
	return bld.insert(inst, name)
}

// Phi merges values; incoming blocks are not modelled.
func (bld *Builder) Phi(t Type, values []Value, name string) *Instruction {
	return bld.insert(newInstruction(OpPhi, t, values...), name)
}

// Ret returns from the function; v may be nil.
func (bld *Builder) Ret(v Value) *Instruction {
	if v == nil {
		return bld.insert(newInstruction(OpRet, Void), "")
	}
	return bld.insert(newInstruction(OpRet, Void, v), "")
}
