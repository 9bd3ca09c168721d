package locals

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stackframe/internal/ir"
)

// newFrameFunction returns a function whose first parameter is the stack
// pointer and a builder appending to its entry block.
func newFrameFunction(extra ...ir.Type) (*ir.Function, *ir.Builder) {
	types := append([]ir.Type{ir.I64}, extra...)
	fn := ir.NewFunction("f", ir.Void, []string{"sp"}, types...)
	ir.SetStackPointerArgument(fn, 0)
	return fn, ir.NewBuilder(fn.NewBlock("entry"))
}

// loadAt reads a value of type t at base+off.
func loadAt(b *ir.Builder, base ir.Value, off int64, t ir.Type) *ir.Instruction {
	addr := base
	if off != 0 {
		addr = b.Add(base, ir.ConstInt(ir.I64, off), "")
	}
	return b.Load(b.IntToPtr(addr, ir.Ptr(t), ""), "")
}

func TestClassify(t *testing.T) {
	fn, b := newFrameFunction()
	sp := fn.Param(0)
	b.Add(sp, ir.ConstInt(ir.I64, 16), "")
	b.Add(ir.ConstInt(ir.I64, 8), sp, "")
	b.Add(sp, ir.ConstInt(ir.I64, 8), "")
	b.IntToPtr(sp, ir.Ptr(ir.I8), "")
	b.Call("use", ir.Void, []ir.Value{sp}, "")

	u, err := classify(sp)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Direct {
		t.Errorf("direct use not detected")
	}
	var offsets []int64
	for _, o := range u.Offsets {
		offsets = append(offsets, o.Offset)
	}
	if diff := cmp.Diff([]int64{8, 8, 16}, offsets); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *ir.Builder, sp, x ir.Value)
	}{
		{"variable offset", func(b *ir.Builder, sp, x ir.Value) { b.Add(sp, x, "") }},
		{"subtraction", func(b *ir.Builder, sp, x ir.Value) { b.Sub(sp, ir.ConstInt(ir.I64, 8), "") }},
		{"masking", func(b *ir.Builder, sp, x ir.Value) { b.Binary(ir.OpAnd, sp, ir.ConstInt(ir.I64, -16), "") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, b := newFrameFunction(ir.I64)
			tt.build(b, fn.Param(0), fn.Param(1))
			if _, err := classify(fn.Param(0)); !errors.Is(err, ErrUnsupported) {
				t.Errorf("classify error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestBuildTree(t *testing.T) {
	fn, b := newFrameFunction()
	sp := fn.Param(0)
	loadAt(b, sp, 0, ir.I64)
	a := b.Add(sp, ir.ConstInt(ir.I64, 16), "a")
	loadAt(b, a, -8, ir.I64)
	loadAt(b, a, 0, ir.I32)

	tree, err := BuildTree(sp)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := tree.String(), "{0: (i64), 8: {0: (i64), 8: (i32)}}"; got != want {
		t.Errorf("tree = %s, want %s", got, want)
	}

	root := tree.Object(tree.Root)
	if root.Kind != Structure || root.Parent != NoObject || root.Shift != 0 {
		t.Errorf("root = %+v", root)
	}
	inner := tree.Object(root.Fields[1].Object)
	if inner.Value != a || inner.Shift != -8 || inner.Parent != tree.Root {
		t.Errorf("nested structure = %+v", inner)
	}
}

func TestBuildTreeNegative(t *testing.T) {
	fn, b := newFrameFunction()
	sp := fn.Param(0)
	loadAt(b, sp, -24, ir.I64)
	loadAt(b, sp, -8, ir.I32)
	loadAt(b, sp, -8, ir.I32)

	tree, err := BuildTree(sp)
	if err != nil {
		t.Fatal(err)
	}
	root := tree.Object(tree.Root)
	if root.Shift != -24 {
		t.Errorf("shift = %d, want -24", root.Shift)
	}
	var offsets []int64
	for _, f := range root.Fields {
		offsets = append(offsets, f.Offset)
	}
	if diff := cmp.Diff([]int64{0, 16, 16}, offsets); diff != "" {
		t.Errorf("field offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTreeMixedSign(t *testing.T) {
	fn, b := newFrameFunction()
	sp := fn.Param(0)
	loadAt(b, sp, -8, ir.I64)
	loadAt(b, sp, 8, ir.I64)

	defer func() {
		r := recover()
		if _, ok := r.(*InvariantError); !ok {
			t.Errorf("recovered %v, want *InvariantError", r)
		}
	}()
	BuildTree(sp)
	t.Errorf("BuildTree accepted offsets of both signs")
}

func TestUnionTypes(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *ir.Builder, addr, x ir.Value)
		want  []string
	}{
		{
			name: "loads and stores",
			build: func(b *ir.Builder, addr, x ir.Value) {
				b.Load(b.IntToPtr(addr, ir.Ptr(ir.I32), ""), "")
				p := b.IntToPtr(addr, ir.Ptr(ir.Float), "")
				b.Store(b.Load(p, ""), p)
				b.Load(b.IntToPtr(addr, ir.Ptr(ir.I32), ""), "")
			},
			want: []string{"i32", "float"},
		},
		{
			name: "stored value is not a type",
			build: func(b *ir.Builder, addr, x ir.Value) {
				p := b.IntToPtr(addr, ir.Ptr(ir.Ptr(ir.I16)), "")
				b.Store(b.IntToPtr(x, ir.Ptr(ir.I16), ""), p)
			},
			want: []string{"i16*"},
		},
		{
			name: "pointer loaded as integer",
			build: func(b *ir.Builder, addr, x ir.Value) {
				v := b.Load(b.IntToPtr(addr, ir.Ptr(ir.I64), ""), "")
				b.Load(b.IntToPtr(v, ir.Ptr(ir.Double), ""), "")
			},
			want: []string{"i64", "double*"},
		},
		{
			name: "escaping address",
			build: func(b *ir.Builder, addr, x ir.Value) {
				b.Call("memset", ir.Void, []ir.Value{addr, x}, "")
			},
			want: []string{"i8"},
		},
		{
			name: "escaping pointer",
			build: func(b *ir.Builder, addr, x ir.Value) {
				b.Call("free", ir.Void, []ir.Value{b.IntToPtr(addr, ir.Ptr(ir.I8), "")}, "")
			},
			want: []string{"i8"},
		},
		{
			name: "typed use wins over escape",
			build: func(b *ir.Builder, addr, x ir.Value) {
				b.Call("use", ir.Void, []ir.Value{addr}, "")
				b.Load(b.IntToPtr(addr, ir.Ptr(ir.I16), ""), "")
			},
			want: []string{"i16"},
		},
		{
			name: "untyped",
			build: func(b *ir.Builder, addr, x ir.Value) {
				b.PtrToInt(b.IntToPtr(addr, ir.Ptr(ir.I8), ""), ir.I64, "")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, b := newFrameFunction(ir.I64)
			addr := b.Add(fn.Param(0), ir.ConstInt(ir.I64, 8), "")
			tt.build(b, addr, fn.Param(1))
			got := unionTypes(addr)
			var names []string
			if len(got) > 0 {
				names = typeNames(got)
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("union types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
