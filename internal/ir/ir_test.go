package ir

import (
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		size uint64
	}{
		{in: "i8", want: "i8", size: 1},
		{in: "i32*", want: "i32*", size: 8},
		{in: "double", want: "double", size: 8},
		{in: "[4 x i8]", want: "[4 x i8]", size: 4},
		{in: "[3 x i64]*", want: "[3 x i64]*", size: 8},
		{in: "<{ i64, i32, [4 x i8], i64 }>", want: "<{ i64, i32, [4 x i8], i64 }>", size: 24},
		{in: "{ i8, i32 }", want: "{ i8, i32 }", size: 8},
		{in: "<{i16,<{ i8, i8 }>}>", want: "<{ i16, <{ i8, i8 }> }>", size: 4},
		{in: "{}", want: "{}", size: 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if err != nil {
				t.Fatalf("ParseType(%q) error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseType(%q) = %s, want %s", tt.in, got, tt.want)
			}
			if size := DefaultLayout.StoreSize(got); size != tt.size {
				t.Errorf("StoreSize(%s) = %d, want %d", got, size, tt.size)
			}
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "i", "[x i8]", "[4 i8]", "<{ i8", "{ i8 i16 }", "int", "i32 extra"} {
		if _, err := ParseType(in); err == nil {
			t.Errorf("ParseType(%q) succeeded, want error", in)
		}
	}
}

func TestFieldOffset(t *testing.T) {
	unpacked := Struct(false, I8, I32, I16, I64)
	packed := Struct(true, I8, I32, I16, I64)

	wantUnpacked := []uint64{0, 4, 8, 16}
	wantPacked := []uint64{0, 1, 5, 7}
	for i := range unpacked.Fields {
		if got := FieldOffset(DefaultLayout, unpacked, i); got != wantUnpacked[i] {
			t.Errorf("unpacked field %d at %d, want %d", i, got, wantUnpacked[i])
		}
		if got := FieldOffset(DefaultLayout, packed, i); got != wantPacked[i] {
			t.Errorf("packed field %d at %d, want %d", i, got, wantPacked[i])
		}
	}
	if got := DefaultLayout.StoreSize(unpacked); got != 24 {
		t.Errorf("unpacked size = %d, want 24", got)
	}
	if got := DefaultLayout.StoreSize(packed); got != 15 {
		t.Errorf("packed size = %d, want 15", got)
	}
}

func TestIndexedTypeAndOffset(t *testing.T) {
	inner := Struct(true, I16, I16)
	frame := Struct(true, I64, inner, Array(I32, 4))
	ptr := Ptr(frame)

	tests := []struct {
		name    string
		indices []Value
		want    string
		offset  int64
	}{
		{"pointer step", []Value{ConstInt(I64, 0)}, frame.String(), 0},
		{"second element", []Value{ConstInt(I64, 1)}, frame.String(), 28},
		{"nested field", []Value{ConstInt(I64, 0), ConstInt(I32, 1), ConstInt(I32, 1)}, "i16", 10},
		{"array element", []Value{ConstInt(I64, 0), ConstInt(I32, 2), ConstInt(I64, 3)}, "i32", 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IndexedType(ptr, tt.indices)
			if got == nil || got.String() != tt.want {
				t.Fatalf("IndexedType = %v, want %s", got, tt.want)
			}
			off, err := IndexedOffset(DefaultLayout, ptr, tt.indices)
			if err != nil {
				t.Fatal(err)
			}
			if off != tt.offset {
				t.Errorf("IndexedOffset = %d, want %d", off, tt.offset)
			}
		})
	}

	if got := IndexedType(ptr, []Value{ConstInt(I64, 0), ConstInt(I32, 7)}); got != nil {
		t.Errorf("out of range field gave %v", got)
	}
	if got := IndexedType(I64, []Value{ConstInt(I64, 0)}); got != nil {
		t.Errorf("indexing a non-pointer gave %v", got)
	}
}

func newTestFunction() (*Function, *Builder) {
	fn := NewFunction("f", Void, []string{"sp"}, I64)
	SetStackPointerArgument(fn, 0)
	return fn, NewBuilder(fn.NewBlock("entry"))
}

func TestReplaceAllUsesWith(t *testing.T) {
	fn, b := newTestFunction()
	sp := fn.Param(0)
	a := b.Add(sp, ConstInt(I64, 8), "a")
	p := b.IntToPtr(a, Ptr(I32), "p")
	b.Call("use", Void, []Value{a, a}, "")
	b.Ret(nil)

	if got := len(a.Users()); got != 3 {
		t.Fatalf("a has %d users, want 3", got)
	}

	c := b.Add(sp, ConstInt(I64, 16), "c")
	ReplaceAllUsesWith(a, c)

	if got := len(a.Users()); got != 0 {
		t.Errorf("a still has %d users", got)
	}
	if got := len(c.Users()); got != 3 {
		t.Errorf("c has %d users, want 3", got)
	}
	if p.Operand(0) != c {
		t.Errorf("cast operand not rewritten")
	}
	a.Erase()
	if got := len(sp.Users()); got != 1 {
		t.Errorf("sp has %d users after erase, want 1", got)
	}
}

func TestPrintFunction(t *testing.T) {
	fn, b := newTestFunction()
	sp := fn.Param(0)
	frame := b.Alloca(Struct(true, I64, I32), "stackframe")
	SetStackFrame(frame)
	a := b.Add(sp, ConstInt(I64, 8), "")
	p := b.IntToPtr(a, Ptr(I32), "p")
	v := b.Load(p, "")
	b.Store(v, p)
	g := b.GEP(frame, []Value{ConstInt(I64, 0), ConstInt(I32, 1)}, "")
	b.PtrToInt(g, I64, "")
	b.Ret(nil)

	want := `define void @f(i64 %sp) !stackptr 0 {
entry:
  %stackframe = alloca <{ i64, i32 }>, !stackframe
  %0 = add i64 %sp, 8
  %p = inttoptr i64 %0 to i32*
  %1 = load i32, i32* %p
  store i32 %1, i32* %p
  %2 = getelementptr <{ i64, i32 }>, <{ i64, i32 }>* %stackframe, i64 0, i32 1
  %3 = ptrtoint i32* %2 to i64
  ret void
}
`
	if got := fn.String(); got != want {
		t.Errorf("printed function mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
	if StackFrame(fn) != frame {
		t.Errorf("StackFrame did not find the tagged alloca")
	}
}

func TestBaseOffset(t *testing.T) {
	fn, b := newTestFunction()
	sp := fn.Param(0)
	frame := b.Alloca(Struct(true, I64, Struct(true, I16, I16)), "stackframe")
	a := b.Add(sp, ConstInt(I64, 24), "a")
	s := b.Sub(a, ConstInt(I64, 4), "s")
	g := b.GEP(frame, []Value{ConstInt(I64, 0), ConstInt(I32, 1), ConstInt(I32, 1)}, "g")
	c := b.BitCast(g, Ptr(I8), "c")
	i := b.PtrToInt(c, I64, "i")

	if base, off := BaseOffset(DefaultLayout, s); base != sp || off != 20 {
		t.Errorf("BaseOffset(s) = %s+%d, want %%sp+20", base.Ref(), off)
	}
	if base, off := BaseOffset(DefaultLayout, i); base != frame || off != 10 {
		t.Errorf("BaseOffset(i) = %s+%d, want %%stackframe+10", base.Ref(), off)
	}
}

func TestModuleString(t *testing.T) {
	m := NewModule("test", nil)
	m.AddFunction(NewFunction("ext", I32, nil, I64))
	fn, b := newTestFunction()
	b.Ret(nil)
	m.AddFunction(fn)

	out := m.String()
	for _, want := range []string{"; module test", "declare i32 @ext(i64 %arg0)", "define void @f(i64 %sp)"} {
		if !strings.Contains(out, want) {
			t.Errorf("module output missing %q:\n%s", want, out)
		}
	}
	if m.Function("f") != fn || m.Function("missing") != nil {
		t.Errorf("Module.Function lookup failed")
	}
}
