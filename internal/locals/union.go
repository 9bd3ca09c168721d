package locals

import (
	"slices"

	"stackframe/internal/ir"
)

// typeSet keeps types in discovery order without duplicates.
type typeSet []ir.Type

func (s *typeSet) add(t ir.Type) {
	if t == nil || slices.ContainsFunc(*s, func(u ir.Type) bool { return ir.Equal(t, u) }) {
		return
	}
	*s = append(*s, t)
}

// unionTypes returns every type the address v is accessed as: the types
// loaded or stored through v reinterpreted as a pointer. An address that is
// only handed to stores or calls, where nothing is known about its pointee,
// gets a single byte.
func unionTypes(v ir.Value) []ir.Type {
	var types typeSet
	escapes := false
	for _, user := range v.Users() {
		switch user.Op {
		case ir.OpIntToPtr:
			if castTypes(user, &types, true) {
				escapes = true
			}
		case ir.OpStore, ir.OpCall:
			escapes = true
		}
	}
	if len(types) == 0 && escapes {
		types.add(ir.I8)
	}
	return types
}

// castTypes adds to types what is accessed through the pointer cast. When
// nested is set and an integer loaded through cast is itself reinterpreted
// as a pointer, the pointee types of that second cast are added as pointer
// types, one level deep. It reports whether the pointer escapes.
func castTypes(cast *ir.Instruction, types *typeSet, nested bool) (escapes bool) {
	for _, user := range cast.Users() {
		switch user.Op {
		case ir.OpLoad:
			types.add(user.Type())
			if !nested || !ir.IsInteger(user.Type()) {
				continue
			}
			for _, loadUser := range user.Users() {
				if loadUser.Op != ir.OpIntToPtr {
					continue
				}
				var inner typeSet
				castTypes(loadUser, &inner, false)
				for _, t := range inner {
					types.add(ir.Ptr(t))
				}
			}
		case ir.OpStore:
			if user.PointerOperand() == cast {
				types.add(user.ValueOperand().Type())
			} else {
				escapes = true
			}
		case ir.OpCall:
			escapes = true
		}
	}
	return escapes
}
