package locals

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"stackframe/internal/ir"
)

// Kind distinguishes the two shapes of stack object.
type Kind int

const (
	// Scalar is a leaf: an address that is only dereferenced.
	Scalar Kind = iota
	// Structure is an address that other objects are offset from.
	Structure
)

func (k Kind) String() string {
	if k == Structure {
		return "structure"
	}
	return "scalar"
}

// ObjectID indexes Tree.Objects.
type ObjectID int

// NoObject is the parent of the root.
const NoObject ObjectID = -1

// Field places an object inside a structure.
type Field struct {
	Offset int64
	Object ObjectID
}

// Object is a node of the stack object tree.
type Object struct {
	Kind   Kind
	Parent ObjectID
	// Value is the address the object was discovered from.
	Value ir.Value
	// Fields are sorted by offset and never negative. Structure only.
	Fields []Field
	// Shift is the offset of the structure's first byte relative to Value.
	// It is zero unless the structure was only reached through negative
	// offsets.
	Shift int64
}

// Tree owns every object discovered from one stack pointer.
type Tree struct {
	Objects []Object
	Root    ObjectID
}

// Object returns the object with the given id.
func (t *Tree) Object(id ObjectID) *Object {
	return &t.Objects[id]
}

// BuildTree discovers the stack objects addressed from base. It fails with
// ErrUnsupported when an address is combined with anything but a constant
// offset, and panics with an *InvariantError when one structure is reached
// through both negative and positive offsets.
func BuildTree(base ir.Value) (*Tree, error) {
	t := &Tree{}
	root, err := t.read(base, NoObject)
	if err != nil {
		return nil, err
	}
	t.Root = root
	return t, nil
}

func (t *Tree) add(obj Object) ObjectID {
	t.Objects = append(t.Objects, obj)
	return ObjectID(len(t.Objects) - 1)
}

func (t *Tree) read(base ir.Value, parent ObjectID) (ObjectID, error) {
	u, err := classify(base)
	if err != nil {
		return NoObject, err
	}
	if len(u.Offsets) == 0 {
		return t.add(Object{Kind: Scalar, Parent: parent, Value: base}), nil
	}

	front, back := u.Offsets[0].Offset, u.Offsets[len(u.Offsets)-1].Offset
	invariant(front >= 0 || back <= 0,
		"%s is offset both by %d and by %d", base.Ref(), front, back)

	id := t.add(Object{Kind: Structure, Parent: parent, Value: base})
	var fields []Field
	if u.Direct {
		fields = append(fields, Field{Offset: 0, Object: t.add(Object{Kind: Scalar, Parent: id, Value: base})})
	}
	for _, use := range u.Offsets {
		child, err := t.read(use.Inst, id)
		if err != nil {
			return NoObject, err
		}
		// A nested structure may start before its own base.
		fields = append(fields, Field{Offset: use.Offset + t.Objects[child].Shift, Object: child})
	}

	slices.SortStableFunc(fields, func(a, b Field) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	shift := fields[0].Offset
	for i := range fields {
		fields[i].Offset -= shift
	}
	t.Objects[id].Fields = fields
	t.Objects[id].Shift = shift
	return id, nil
}

// String prints the tree with the union types of its scalars, for example
// "{0: (i64), 8: {0: (i32, float)}}".
func (t *Tree) String() string {
	var sb strings.Builder
	t.format(&sb, t.Root)
	return sb.String()
}

func (t *Tree) format(sb *strings.Builder, id ObjectID) {
	obj := &t.Objects[id]
	if obj.Kind == Scalar {
		types := unionTypes(obj.Value)
		names := make([]string, len(types))
		for i, ty := range types {
			names[i] = ty.String()
		}
		fmt.Fprintf(sb, "(%s)", strings.Join(names, ", "))
		return
	}
	sb.WriteString("{")
	for i, f := range obj.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%d: ", f.Offset)
		t.format(sb, f.Object)
	}
	sb.WriteString("}")
}
