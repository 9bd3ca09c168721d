package ir

import "fmt"

// Op is an instruction opcode.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl

	OpIntToPtr
	OpPtrToInt
	OpBitCast
	OpTrunc
	OpZExt
	OpSExt

	OpLoad
	OpStore
	OpGEP
	OpAlloca
	OpCall
	OpPhi
	OpRet
)

var opNames = map[Op]string{
	OpAdd:      "add",
	OpSub:      "sub",
	OpMul:      "mul",
	OpAnd:      "and",
	OpOr:       "or",
	OpXor:      "xor",
	OpShl:      "shl",
	OpIntToPtr: "inttoptr",
	OpPtrToInt: "ptrtoint",
	OpBitCast:  "bitcast",
	OpTrunc:    "trunc",
	OpZExt:     "zext",
	OpSExt:     "sext",
	OpLoad:     "load",
	OpStore:    "store",
	OpGEP:      "getelementptr",
	OpAlloca:   "alloca",
	OpCall:     "call",
	OpPhi:      "phi",
	OpRet:      "ret",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// LookupOp maps an opcode mnemonic back to its Op.
func LookupOp(name string) (Op, bool) {
	for op, s := range opNames {
		if s == name {
			return op, true
		}
	}
	return 0, false
}

func (op Op) IsBinary() bool { return op >= OpAdd && op <= OpShl }
func (op Op) IsCast() bool   { return op >= OpIntToPtr && op <= OpSExt }

// Instruction is both an operation and the value it produces.
type Instruction struct {
	userList
	Op   Op
	Name string
	// Callee names the called function for OpCall.
	Callee string
	// Allocated is the allocated type for OpAlloca.
	Allocated Type

	typ      Type
	operands []Value
	block    *Block
	meta     map[string]any
}

func newInstruction(op Op, typ Type, operands ...Value) *Instruction {
	inst := &Instruction{Op: op, typ: typ}
	for _, v := range operands {
		inst.operands = append(inst.operands, v)
		v.addUser(inst)
	}
	return inst
}

func (inst *Instruction) Type() Type { return inst.typ }

func (inst *Instruction) Ref() string {
	if inst.Name == "" {
		return "%<unnamed>"
	}
	return "%" + inst.Name
}

func (inst *Instruction) Block() *Block { return inst.block }

func (inst *Instruction) NumOperands() int { return len(inst.operands) }

func (inst *Instruction) Operand(i int) Value { return inst.operands[i] }

func (inst *Instruction) Operands() []Value { return inst.operands }

// SetOperand replaces operand i and keeps the user lists in sync.
func (inst *Instruction) SetOperand(i int, v Value) {
	old := inst.operands[i]
	if old == v {
		return
	}
	old.removeUser(inst)
	inst.operands[i] = v
	v.addUser(inst)
}

// ProducesValue reports whether the instruction defines an SSA value.
func (inst *Instruction) ProducesValue() bool {
	return inst.typ != nil && inst.typ.Kind() != VoidKind
}

// PointerOperand returns the address operand of a load or store.
func (inst *Instruction) PointerOperand() Value {
	switch inst.Op {
	case OpLoad:
		return inst.operands[0]
	case OpStore:
		return inst.operands[1]
	}
	return nil
}

// ValueOperand returns the stored value of a store.
func (inst *Instruction) ValueOperand() Value {
	if inst.Op == OpStore {
		return inst.operands[0]
	}
	return nil
}

// OtherOperand returns the operand of a binary instruction that is not v.
func (inst *Instruction) OtherOperand(v Value) Value {
	if inst.operands[0] == v {
		return inst.operands[1]
	}
	return inst.operands[0]
}

// Erase detaches the instruction from its block and from the user lists of
// its operands. It must not have users left.
func (inst *Instruction) Erase() {
	if len(inst.users) > 0 {
		panic(fmt.Sprintf("ir: erasing %s which still has %d users", inst.Ref(), len(inst.users)))
	}
	for _, op := range inst.operands {
		op.removeUser(inst)
	}
	inst.operands = nil
	if inst.block != nil {
		inst.block.remove(inst)
	}
}
