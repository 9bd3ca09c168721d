package ir

import (
	"fmt"
	"slices"
)

// Value is anything that can be an instruction operand.
type Value interface {
	Type() Type
	// Ref is the operand spelling of the value, e.g. "%sp" or "8".
	Ref() string
	// Users lists the instructions that use the value, once per operand slot.
	Users() []*Instruction

	addUser(*Instruction)
	removeUser(*Instruction)
}

type userList struct {
	users []*Instruction
}

func (u *userList) Users() []*Instruction { return u.users }

func (u *userList) addUser(inst *Instruction) {
	u.users = append(u.users, inst)
}

func (u *userList) removeUser(inst *Instruction) {
	if i := slices.Index(u.users, inst); i >= 0 {
		u.users = slices.Delete(u.users, i, i+1)
	}
}

// Param is a function parameter.
type Param struct {
	userList
	Name  string
	Index int
	typ   Type
	fn    *Function
}

func (p *Param) Type() Type          { return p.typ }
func (p *Param) Ref() string         { return "%" + p.Name }
func (p *Param) Function() *Function { return p.fn }

// Const is an integer constant. Constants are not uniqued; each one keeps
// its own user list.
type Const struct {
	userList
	Int int64
	typ Type
}

func ConstInt(t *IntType, v int64) *Const {
	return &Const{Int: v, typ: t}
}

func (c *Const) Type() Type  { return c.typ }
func (c *Const) Ref() string { return fmt.Sprintf("%d", c.Int) }

// Undef is an unspecified value of some type.
type Undef struct {
	userList
	typ Type
}

func NewUndef(t Type) *Undef { return &Undef{typ: t} }

func (u *Undef) Type() Type  { return u.typ }
func (u *Undef) Ref() string { return "undef" }

// IsConstant reports whether v is an integer constant and returns it.
func IsConstant(v Value) (*Const, bool) {
	c, ok := v.(*Const)
	return c, ok
}

// ReplaceAllUsesWith rewrites every operand referring to old so that it
// refers to repl instead.
func ReplaceAllUsesWith(old, repl Value) {
	if old == repl {
		return
	}
	for _, user := range slices.Clone(old.Users()) {
		for i, op := range user.operands {
			if op == old {
				user.SetOperand(i, repl)
			}
		}
	}
}

// Typed renders a value as "type ref".
func Typed(v Value) string {
	return v.Type().String() + " " + v.Ref()
}
