package locals

import (
	"cmp"
	"slices"

	"stackframe/internal/ir"
)

// offsetUse is an addition of a constant to a base pointer.
type offsetUse struct {
	Offset int64
	Inst   *ir.Instruction
}

// usage is how a pointer-sized integer is used.
type usage struct {
	// Direct is set when the value itself is cast to a pointer.
	Direct bool
	// Offsets are the constant additions, sorted by offset. Several
	// additions may share one offset.
	Offsets []offsetUse
}

// classify buckets the users of base. Only constant additions and
// reinterpretations as a pointer shape the object; loads, stores, calls and
// phis are left to union type discovery. Any other arithmetic, including an
// addition of a variable, makes the object unsupported.
func classify(base ir.Value) (usage, error) {
	var u usage
	for _, user := range base.Users() {
		switch {
		case user.Op == ir.OpAdd:
			other := user.OtherOperand(base)
			c, ok := ir.IsConstant(other)
			if !ok {
				// Arrays are not recovered.
				return usage{}, unsupported("%s is offset by variable %s", base.Ref(), other.Ref())
			}
			u.Offsets = append(u.Offsets, offsetUse{Offset: c.Int, Inst: user})
		case user.Op.IsBinary():
			return usage{}, unsupported("%s is used by %s", base.Ref(), user.Op)
		case user.Op == ir.OpIntToPtr:
			u.Direct = true
		}
	}
	slices.SortStableFunc(u.Offsets, func(a, b offsetUse) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return u, nil
}
