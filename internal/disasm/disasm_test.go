package disasm

import (
	"testing"
)

func TestDecode(t *testing.T) {
	code := []byte{
		0xFF, 0x83, 0x00, 0xD1, // sub sp, sp, #0x20
		0x1F, 0x20, 0x03, 0xD5, // nop
		0x02, 0x00, 0x00, 0x94, // bl .+8
	}
	s := Decode(0x1000, code)
	if len(s) != 3 {
		t.Fatalf("decoded %d instructions, want 3", len(s))
	}
	if s[0].Op != "sub" || !s[0].Valid {
		t.Errorf("s[0] = %+v", s[0])
	}
	if s[0].Text != "sub sp, sp, #0x20" {
		t.Errorf("s[0].Text = %q", s[0].Text)
	}
	if s[1].Text != "nop" {
		t.Errorf("s[1] = %q", s[1].Text)
	}
	if s[2].VA != 0x1008 || s[2].Op != "bl" {
		t.Errorf("s[2] = %+v", s[2])
	}
	if target, ok := s[2].BranchTarget(); !ok || target != 0x1010 {
		t.Errorf("BranchTarget = 0x%x, %v; want 0x1010", target, ok)
	}
	if _, ok := s[0].BranchTarget(); ok {
		t.Error("sub has a branch target")
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	s := Decode(0, []byte{0xC0, 0x03, 0x5F, 0xD6, 0x00})
	// arm64asm always names the link register of a bare ret.
	if len(s) != 1 || s[0].Text != "ret x30" {
		t.Errorf("stream = %q", s.String())
	}
}

func TestInvalidHasNoTarget(t *testing.T) {
	in := Inst{VA: 0x1000, Text: ".word 0x00000000", Op: ".word"}
	if _, ok := in.BranchTarget(); ok {
		t.Error("undecoded word has a branch target")
	}
}
