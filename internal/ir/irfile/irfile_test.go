package irfile

import (
	"strings"
	"testing"

	"stackframe/internal/ir"
)

func TestLoadFile(t *testing.T) {
	m, err := LoadFile("testdata/roundtrip.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "roundtrip" || len(m.Functions) != 2 {
		t.Fatalf("module %q has %d functions", m.Name, len(m.Functions))
	}

	fill := m.Function("fill")
	if sp := ir.StackPointer(fill); sp == nil || sp.Name != "sp" {
		t.Errorf("stack pointer = %v, want %%sp", sp)
	}
	out := fill.String()
	for _, want := range []string{
		"define void @fill(i64 %sp, i32 %x) !stackptr 0 {",
		"%va = load i64, i64* %pa",
		"%off8 = add i64 %sp, 8",
		"store i32 %x, i32* %pb",
		"store i64 0, i64* %pc1",
		"call void @consume(i64 %off16)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	helper := m.Function("helper")
	if len(helper.Blocks) != 0 || helper.ReturnType.String() != "i32" {
		t.Errorf("helper = %s", helper)
	}
	if _, ok := ir.StackPointerArgument(helper); ok {
		t.Errorf("helper has a stack pointer")
	}
}

func TestLoadLayout(t *testing.T) {
	m, err := LoadFile("testdata/mixed.yaml")
	if err != nil {
		t.Fatal(err)
	}
	dl, ok := m.Layout.(*ir.DataLayout)
	if !ok || dl.PointerSize != 8 || dl.MaxAlign != 16 {
		t.Errorf("layout = %#v", m.Layout)
	}
	if got := m.Function("overlap").String(); !strings.Contains(got, "store i16 undef, i16* %narrow") {
		t.Errorf("undef store not built:\n%s", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown key",
			src:  "functions: [{name: f, params: [], colour: red}]",
			want: "decode ir file",
		},
		{
			name: "unknown opcode",
			src:  "functions: [{name: f, blocks: [{name: entry, instrs: [{op: frob}]}]}]",
			want: `unknown opcode "frob"`,
		},
		{
			name: "undefined value",
			src:  "functions: [{name: f, blocks: [{name: entry, instrs: [{def: a, op: add, type: i64, args: ['%b', '1']}]}]}]",
			want: "undefined value %b",
		},
		{
			name: "mismatched operand",
			src: `functions:
  - name: f
    params: [{name: x, type: i32}]
    blocks: [{name: entry, instrs: [{op: add, type: i64, args: ['%x', '1']}]}]`,
			want: "is not i64",
		},
		{
			name: "load through integer",
			src: `functions:
  - name: f
    params: [{name: x, type: i64}]
    blocks: [{name: entry, instrs: [{op: load, args: ['%x']}]}]`,
			want: "is not a pointer",
		},
		{
			name: "stack pointer out of range",
			src:  "functions: [{name: f, params: [], stack_pointer: 2}]",
			want: "out of range",
		},
		{
			name: "redefinition",
			src: `functions:
  - name: f
    params: [{name: x, type: i64}]
    blocks: [{name: entry, instrs: [{def: x, op: add, type: i64, args: ['%x', '1']}]}]`,
			want: "defined twice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.src))
			if err == nil {
				t.Fatalf("Load succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}
