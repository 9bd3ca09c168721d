package analysis

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stackframe/internal/elfx"
	"stackframe/internal/elfx/elftest"
	"stackframe/internal/ir/irfile"
)

var (
	framed = []uint32{
		0xD10083FF, // sub sp, sp, #0x20
		0xF90007E0, // str x0, [sp,#8]
		0xB90013E1, // str w1, [sp,#16]
		0x910083FF, // add sp, sp, #0x20
		0xD65F03C0, // ret
	}
	leaf = []uint32{0xD65F03C0}
)

func writeBinary(t *testing.T) string {
	t.Helper()
	return elftest.WriteFile(t,
		elftest.Func{Name: "framed", Code: framed},
		elftest.Func{Name: "leaf", Code: leaf},
		elftest.Func{Name: "_ZN5Stack4pushEi", Code: framed},
		elftest.Func{Name: "__internal", Code: leaf},
	)
}

func TestCachedDemangle(t *testing.T) {
	tests := map[string]string{
		"_ZN5Stack4pushEi": "Stack::push(int)",
		"main":             "main",
	}
	for in, want := range tests {
		if got := CachedDemangle(in); got != want {
			t.Errorf("CachedDemangle(%q) = %q, want %q", in, got, want)
		}
	}
	CachedDemangle("main")
	total, hits, top := DemangleCacheStats()
	if total < 2 || hits < 1 || len(top) == 0 {
		t.Errorf("stats = %d, %d, %v", total, hits, top)
	}
}

func TestFunctions(t *testing.T) {
	im, err := elfx.Open(writeBinary(t))
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()

	names := func(syms []Symbol) []string {
		var out []string
		for _, s := range syms {
			out = append(out, s.Demangled)
		}
		return out
	}
	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"framed", "leaf", "Stack::push(int)"}},
		{"Stack::", []string{"Stack::push(int)"}},
		{"_ZN5", []string{"Stack::push(int)"}},
		{"__int", []string{"__internal"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, names(Functions(im, tt.filter))); diff != "" {
			t.Errorf("Functions(%q) mismatch (-want +got):\n%s", tt.filter, diff)
		}
	}
}

func TestBinary(t *testing.T) {
	r, err := Binary(writeBinary(t), Options{Verify: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Digest) != 64 {
		t.Errorf("digest = %q", r.Digest)
	}
	if r.Recovered != 2 || r.Skipped != 1 || len(r.Functions) != 3 {
		t.Fatalf("report = %+v", r)
	}

	fn := r.Functions[0]
	if fn.Name != "framed" || fn.Status != Recovered {
		t.Fatalf("first function = %s %s", fn.Name, fn.Status)
	}
	if fn.Frame != "<{ i64, i32 }>" || fn.Shift != 8 {
		t.Errorf("frame = %s shifted %d", fn.Frame, fn.Shift)
	}
	want := []SlotReport{{Offset: 0, Type: "i64", Path: "0, 0"}, {Offset: 8, Type: "i32", Path: "0, 1"}}
	if diff := cmp.Diff(want, fn.Slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(fn.After, "alloca <{ i64, i32 }>") {
		t.Errorf("rewritten IR:\n%s", fn.After)
	}
	if fn.Lift == nil || fn.Lift.FrameSize != 32 || fn.Lift.Accesses != 2 {
		t.Errorf("lift stats = %+v", fn.Lift)
	}
}

func TestBinarySymbolFilter(t *testing.T) {
	r, err := Binary(writeBinary(t), Options{Symbol: "Stack::push"})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Functions) != 1 || r.Functions[0].Demangled != "Stack::push(int)" {
		t.Fatalf("functions = %+v", r.Functions)
	}
	md := r.Markdown(true)
	for _, s := range []string{"## Stack::push(int)", "**recovered**", "```llvm", "### Disassembly", "| 16 | `i32` | `0, "} {
		if !strings.Contains(md, s) {
			t.Errorf("markdown missing %q:\n%s", s, md)
		}
	}
}

func TestBinaryNotELF(t *testing.T) {
	if _, err := Binary("testdata/missing", Options{}); err == nil {
		t.Error("Binary succeeded on a missing file")
	}
}

func TestModule(t *testing.T) {
	m, err := irfile.LoadFile("../ir/irfile/testdata/mixed.yaml")
	if err != nil {
		t.Fatal(err)
	}
	r := Module(m, Options{Verify: true})
	got := map[string]Status{}
	for _, fn := range r.Functions {
		got[fn.Name] = fn.Status
	}
	want := map[string]Status{"overlap": Recovered, "indexed": Abandoned, "leaf": Skipped}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if r.Recovered != 1 || r.Abandoned != 1 || r.Skipped != 1 {
		t.Errorf("report counts = %+v", r)
	}
}
