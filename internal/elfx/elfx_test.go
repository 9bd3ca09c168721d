package elfx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stackframe/internal/elfx/elftest"
)

func openTest(t *testing.T) *Image {
	t.Helper()
	path := elftest.WriteFile(t,
		elftest.Func{Name: "first", Code: []uint32{0xD65F03C0}},
		elftest.Func{Name: "second", Code: []uint32{0xD10083FF, 0x910083FF, 0xD65F03C0}},
	)
	im, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { im.Close() })
	return im
}

func TestOpen(t *testing.T) {
	im := openTest(t)
	base := elftest.TextVA()
	want := []Func{
		{Name: "first", Addr: base, Size: 4},
		{Name: "second", Addr: base + 4, Size: 12},
	}
	if diff := cmp.Diff(want, im.Funcs); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
	if im.Text.VA != base || im.Text.Size != 16 {
		t.Errorf(".text = %+v", im.Text)
	}
}

func TestFuncAt(t *testing.T) {
	im := openTest(t)
	base := elftest.TextVA()
	tests := []struct {
		va   uint64
		want string
	}{
		{base, "first"},
		{base + 4, "second"},
		{base + 12, "second"},
		{base + 16, ""},
		{base - 4, ""},
	}
	for _, tt := range tests {
		fn, _ := im.FuncAt(tt.va)
		if fn.Name != tt.want {
			t.Errorf("FuncAt(0x%x) = %q, want %q", tt.va, fn.Name, tt.want)
		}
	}
}

func TestSymbolAt(t *testing.T) {
	im := openTest(t)
	if name, ok := im.SymbolAt(elftest.TextVA() + 4); !ok || name != "second" {
		t.Errorf("SymbolAt(second) = %q, %v", name, ok)
	}
	if _, ok := im.SymbolAt(elftest.TextVA() + 8); ok {
		t.Error("SymbolAt named an address inside a function")
	}
}

func TestFuncBytes(t *testing.T) {
	im := openTest(t)
	fn, ok := im.FuncByName("second")
	if !ok {
		t.Fatal("second not found")
	}
	code, err := im.FuncBytes(fn)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFF, 0x83, 0x00, 0xD1}
	if diff := cmp.Diff(want, code[:4]); diff != "" || len(code) != 12 {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if _, err := im.FuncBytes(Func{Name: "far", Addr: 0x10, Size: 4}); err == nil {
		t.Error("FuncBytes read an unmapped function")
	}
}

func TestOpenRejectsOtherMachines(t *testing.T) {
	data := elftest.Build(elftest.Func{Name: "f", Code: []uint32{0xD65F03C0}})
	// e_machine lives at offset 18.
	data[18], data[19] = 62, 0 // EM_X86_64
	path := filepath.Join(t.TempDir(), "x86")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if im, err := Open(path); err == nil {
		im.Close()
		t.Fatal("Open accepted an x86-64 binary")
	}
}
