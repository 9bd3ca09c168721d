package colorize

import (
	"strings"
	"testing"
)

func TestDisabled(t *testing.T) {
	t.Setenv("STACKFRAME_NO_COLOR", "1")
	const line = "1000  sub sp, sp, #0x20"
	if got := DisasmLine(line); got != line {
		t.Errorf("DisasmLine = %q, want it unchanged", got)
	}
	if got, err := IR("%a = add i64 %sp, 8"); err != nil || got != "%a = add i64 %sp, 8" {
		t.Errorf("IR = %q, %v", got, err)
	}
}

func TestHighlightKeepsText(t *testing.T) {
	t.Setenv("STACKFRAME_NO_COLOR", "")
	const ir = "store i64 %x0, i64* %p"
	got, err := IR(ir)
	if err != nil {
		t.Fatal(err)
	}
	if plain := strings.TrimRight(StripANSI(got), "\n"); plain != ir {
		t.Errorf("StripANSI(IR) = %q, want %q", plain, ir)
	}
	line := DisasmLine("1000  ret")
	if !strings.HasPrefix(line, "\033[") || !strings.Contains(StripANSI(line), "ret") {
		t.Errorf("DisasmLine = %q", line)
	}
}
