package ir

// BaseOffset folds constant address arithmetic: it follows additions of
// constants, pointer/integer conversions, bitcasts and constant
// getelementptrs back to the value they start from, and returns that value
// with the accumulated byte offset.
func BaseOffset(l Layout, v Value) (Value, int64) {
	var off int64
	for {
		inst, ok := v.(*Instruction)
		if !ok {
			return v, off
		}
		switch inst.Op {
		case OpAdd:
			if c, ok := IsConstant(inst.operands[1]); ok {
				off += c.Int
				v = inst.operands[0]
				continue
			}
			if c, ok := IsConstant(inst.operands[0]); ok {
				off += c.Int
				v = inst.operands[1]
				continue
			}
		case OpSub:
			if c, ok := IsConstant(inst.operands[1]); ok {
				off -= c.Int
				v = inst.operands[0]
				continue
			}
		case OpIntToPtr, OpPtrToInt, OpBitCast:
			v = inst.operands[0]
			continue
		case OpGEP:
			ptr := inst.operands[0]
			if d, err := IndexedOffset(l, ptr.Type(), inst.operands[1:]); err == nil {
				off += d
				v = ptr
				continue
			}
		}
		return v, off
	}
}
