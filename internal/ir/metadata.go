package ir

// Annotations carried next to the IR. The lifter (or whoever runs argument
// recovery) designates the stack pointer parameter; the locals pass tags the
// frame it allocates so later stages can find it.

const (
	mdStackPointer = "stackptr"
	mdStackFrame   = "stackframe"
)

// SetStackPointerArgument records which parameter of fn is the stack pointer.
func SetStackPointerArgument(fn *Function, index int) {
	if fn.meta == nil {
		fn.meta = make(map[string]any)
	}
	fn.meta[mdStackPointer] = index
}

// StackPointerArgument returns the index recorded by SetStackPointerArgument.
func StackPointerArgument(fn *Function) (int, bool) {
	index, ok := fn.meta[mdStackPointer].(int)
	return index, ok
}

// StackPointer returns the designated stack pointer parameter, or nil.
func StackPointer(fn *Function) *Param {
	index, ok := StackPointerArgument(fn)
	if !ok {
		return nil
	}
	return fn.Param(index)
}

// SetStackFrame marks inst as the recovered stack frame of its function.
func SetStackFrame(inst *Instruction) {
	if inst.meta == nil {
		inst.meta = make(map[string]any)
	}
	inst.meta[mdStackFrame] = true
}

func IsStackFrame(inst *Instruction) bool {
	tagged, _ := inst.meta[mdStackFrame].(bool)
	return tagged
}

// StackFrame returns the instruction tagged by SetStackFrame, or nil.
func StackFrame(fn *Function) *Instruction {
	for _, inst := range fn.Instructions() {
		if IsStackFrame(inst) {
			return inst
		}
	}
	return nil
}
