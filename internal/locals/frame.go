package locals

import (
	"fmt"
	"strconv"
	"strings"

	"stackframe/internal/ir"
)

// Frame is the recovered layout of a stack frame.
type Frame struct {
	// Type is the packed struct allocated in place of the stack.
	Type ir.Type
	// Shift is the offset of the frame's first byte from the stack
	// pointer.
	Shift int64
	// Slots lists the scalars in the order they are laid out.
	Slots []Slot
	Tree  *Tree

	// Alloca is set once the frame has been materialized.
	Alloca *ir.Instruction
}

// Slot is a scalar object and how to address it inside the frame.
type Slot struct {
	Object ObjectID
	Value  ir.Value
	Type   ir.Type
	// Offset is the byte offset from the start of the frame.
	Offset int64
	// Path are the getelementptr steps from the frame to the scalar. The
	// first step indexes over the frame pointer itself.
	Path []Step
}

// PathString renders the path as its indices, naming the type of every
// step that reinterprets the pointer: "0, 2, 0 as i32".
func (s Slot) PathString() string {
	parts := make([]string, len(s.Path))
	for i, step := range s.Path {
		parts[i] = strconv.FormatInt(step.Index, 10)
		if step.Cast {
			parts[i] += " as " + step.Expected.String()
		}
	}
	return strings.Join(parts, ", ")
}

// Step is one index of an addressing path. Expected is the type the step
// must produce; when indexing does not naturally produce it, Cast is set and
// the pointer is reinterpreted before the walk continues.
type Step struct {
	Index    int64
	Expected ir.Type
	Cast     bool
}

type linkID int

const noLink linkID = -1

type link struct {
	parent   linkID
	index    int64
	expected ir.Type
	set      bool
}

type frameBuilder struct {
	layout  ir.Layout
	tree    *Tree
	links   []link
	linkOf  map[ObjectID]linkID
	types   map[ObjectID]ir.Type
	scalars []ObjectID
}

// BuildFrame lays the objects of tree out as one packed struct. Overlapping
// fields are merged into a packed struct of padding around an anchor, and
// holes between fields become byte arrays, so that every scalar sits at the
// same offset from the frame start as it did from the stack pointer, minus
// the root's shift.
func BuildFrame(l ir.Layout, tree *Tree) (*Frame, error) {
	fb := &frameBuilder{
		layout: l,
		tree:   tree,
		linkOf: make(map[ObjectID]linkID),
		types:  make(map[ObjectID]ir.Type),
	}

	root := tree.Object(tree.Root)
	var rootType ir.Type
	switch root.Kind {
	case Structure:
		if err := fb.represent(tree.Root); err != nil {
			return nil, err
		}
		rootType = fb.types[tree.Root]
		fb.setLink(fb.linkFor(tree.Root), 0, rootType, noLink)
	default:
		// A stack pointer that is only dereferenced still gets a frame.
		if err := fb.represent(tree.Root); err != nil {
			return nil, err
		}
		rootType = ir.Struct(true, fb.types[tree.Root])
		top := fb.newLink()
		fb.setLink(top, 0, rootType, noLink)
		fb.setLink(fb.linkFor(tree.Root), 0, fb.types[tree.Root], top)
	}

	frame := &Frame{Type: rootType, Shift: root.Shift, Tree: tree}
	for _, id := range fb.scalars {
		path, err := fb.path(rootType, id)
		if err != nil {
			return nil, err
		}
		off, err := pathOffset(l, rootType, path)
		if err != nil {
			return nil, err
		}
		frame.Slots = append(frame.Slots, Slot{
			Object: id,
			Value:  tree.Object(id).Value,
			Type:   fb.types[id],
			Offset: off,
			Path:   path,
		})
	}
	return frame, nil
}

func (fb *frameBuilder) newLink() linkID {
	fb.links = append(fb.links, link{parent: noLink})
	return linkID(len(fb.links) - 1)
}

func (fb *frameBuilder) linkFor(id ObjectID) linkID {
	if l, ok := fb.linkOf[id]; ok {
		return l
	}
	l := fb.newLink()
	fb.linkOf[id] = l
	return l
}

func (fb *frameBuilder) setLink(id linkID, index int64, expected ir.Type, parent linkID) {
	ln := &fb.links[id]
	invariant(!ln.set, "object link %d assigned twice", id)
	*ln = link{parent: parent, index: index, expected: expected, set: true}
}

func (fb *frameBuilder) represent(id ObjectID) error {
	if fb.tree.Object(id).Kind == Scalar {
		return fb.representScalar(id)
	}
	return fb.representStructure(id)
}

func (fb *frameBuilder) representScalar(id ObjectID) error {
	obj := fb.tree.Object(id)
	types := unionTypes(obj.Value)
	if len(types) == 0 {
		return unsupported("no typed access through %s", obj.Value.Ref())
	}
	var g Group
	for _, t := range types {
		next, ok := g.Insert(fb.layout, Access{Offset: 0, Object: id, Type: t})
		if !ok {
			return unsupported("%s is accessed as a zero-sized %s", obj.Value.Ref(), t)
		}
		g = next
	}
	r, err := Reduce(fb.layout, g)
	if err != nil {
		return err
	}
	if r.Fields != 1 {
		return unsupported("%s has no single covering type", obj.Value.Ref())
	}
	fb.types[id] = r.Type
	fb.scalars = append(fb.scalars, id)
	return nil
}

func (fb *frameBuilder) representStructure(id ObjectID) error {
	obj := fb.tree.Object(id)
	this := fb.linkFor(id)

	var body []ir.Type
	var g Group
	flush := func() error {
		t, err := fb.reduceField(g, this, len(body))
		if err != nil {
			return err
		}
		body = append(body, t)
		return nil
	}
	for _, f := range obj.Fields {
		if err := fb.represent(f.Object); err != nil {
			return err
		}
		a := Access{Offset: f.Offset, Object: f.Object, Type: fb.types[f.Object]}
		if next, ok := g.Insert(fb.layout, a); ok {
			g = next
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if gap := f.Offset - g.End(); gap > 0 {
			body = append(body, ir.Array(ir.I8, uint64(gap)))
		}
		g, _ = Group{}.Insert(fb.layout, a)
	}
	if g.Len() > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	fb.types[id] = ir.Struct(true, body...)
	return nil
}

// reduceField emits one element of a structure for an overlap group and
// links the group's objects to it.
func (fb *frameBuilder) reduceField(g Group, parent linkID, index int) (ir.Type, error) {
	r, err := Reduce(fb.layout, g)
	if err != nil {
		return nil, err
	}
	if r.Fields == 1 {
		for _, a := range g.Accesses() {
			fb.setLink(fb.linkFor(a.Object), int64(index), a.Type, parent)
		}
		return r.Type, nil
	}
	group := fb.newLink()
	fb.setLink(group, int64(index), r.Type, parent)
	for _, a := range g.Accesses() {
		i, ok := r.Indices[a.Object]
		invariant(ok, "object %d missing from its overlap reduction", a.Object)
		fb.setLink(fb.linkFor(a.Object), int64(i), a.Type, group)
	}
	return r.Type, nil
}

// path walks the links of a scalar up to the frame and returns the steps
// from the frame down.
func (fb *frameBuilder) path(rootType ir.Type, id ObjectID) ([]Step, error) {
	var chain []link
	for l := fb.linkFor(id); l != noLink; l = fb.links[l].parent {
		ln := fb.links[l]
		invariant(ln.set, "object %d is not linked to the frame", id)
		chain = append(chain, ln)
	}

	steps := make([]Step, 0, len(chain))
	cur := ir.Type(ir.Ptr(rootType))
	var indices []ir.Value
	for i := len(chain) - 1; i >= 0; i-- {
		ln := chain[i]
		indices = append(indices, indexConst(len(indices), ln.index))
		natural := ir.IndexedType(cur, indices)
		step := Step{Index: ln.index, Expected: ln.expected}
		if natural == nil || !ir.Equal(natural, ln.expected) {
			if len(steps) == 0 {
				return nil, &InvariantError{What: fmt.Sprintf("frame root has type %v, want %v", natural, ln.expected)}
			}
			step.Cast = true
			cur = ir.Ptr(ln.expected)
			indices = []ir.Value{indexConst(0, 0)}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// pathOffset computes the byte offset a path addresses within the frame.
func pathOffset(l ir.Layout, rootType ir.Type, path []Step) (int64, error) {
	var total int64
	cur := ir.Type(ir.Ptr(rootType))
	var indices []ir.Value
	for _, s := range path {
		indices = append(indices, indexConst(len(indices), s.Index))
		if !s.Cast {
			continue
		}
		off, err := ir.IndexedOffset(l, cur, indices)
		if err != nil {
			return 0, err
		}
		total += off
		cur = ir.Ptr(s.Expected)
		indices = []ir.Value{indexConst(0, 0)}
	}
	off, err := ir.IndexedOffset(l, cur, indices)
	if err != nil {
		return 0, err
	}
	return total + off, nil
}

// indexConst returns a getelementptr index: the pointer step is i64 and
// struct field indices are i32.
func indexConst(position int, v int64) *ir.Const {
	if position == 0 {
		return ir.ConstInt(ir.I64, v)
	}
	return ir.ConstInt(ir.I32, v)
}
