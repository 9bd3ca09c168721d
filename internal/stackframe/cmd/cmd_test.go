package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/google/go-cmp/cmp"

	"stackframe/internal/analysis"
	"stackframe/internal/elfx/elftest"
)

var framed = []uint32{
	0xD10083FF, // sub sp, sp, #0x20
	0xF90007E0, // str x0, [sp,#8]
	0xB90013E1, // str w1, [sp,#16]
	0x910083FF, // add sp, sp, #0x20
	0xD65F03C0, // ret
}

// execute runs the command line with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STACKFRAME_NO_COLOR", "1")
	t.Setenv("STACKFRAME_LOG_LEVEL", "error")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunJSON(t *testing.T) {
	bin := elftest.WriteFile(t,
		elftest.Func{Name: "framed", Code: framed},
		elftest.Func{Name: "leaf", Code: []uint32{0xD65F03C0}},
	)
	out, err := execute(t, "run", "--json", bin)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var report analysis.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	got := map[string]analysis.Status{}
	for _, fn := range report.Functions {
		got[fn.Name] = fn.Status
	}
	want := map[string]analysis.Status{"framed": analysis.Recovered, "leaf": analysis.Skipped}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if report.Functions[0].Frame != "<{ i64, i32 }>" {
		t.Errorf("frame = %s", report.Functions[0].Frame)
	}
}

func TestRunReport(t *testing.T) {
	bin := elftest.WriteFile(t, elftest.Func{Name: "framed", Code: framed})
	out, err := execute(t, "run", "--symbol", "framed", "--full", bin)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"framed", "recovered", "alloca <{ i64, i32 }>", "sub sp, sp"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRunMissingFile(t *testing.T) {
	if _, err := execute(t, "run", filepath.Join(t.TempDir(), "nope")); err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("err = %v, want file not found", err)
	}
}

func TestIR(t *testing.T) {
	out, err := execute(t, "ir", "--after", "testdata/mixed.yaml")
	if err != nil {
		t.Fatalf("ir: %v\n%s", err, out)
	}
	for _, want := range []string{
		"; overlap: recovered",
		"%stackframe = alloca <{ <{ i16, i16 }> }>",
		"; indexed: abandoned",
		"; leaf: skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIRRejectsBinaries(t *testing.T) {
	bin := elftest.WriteFile(t, elftest.Func{Name: "framed", Code: framed})
	if _, err := execute(t, "ir", bin); err == nil {
		t.Error("ir accepted a binary")
	}
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"pointer_size"`, `"max_insns"`, "Pointer Size"} {
		if !strings.Contains(out, want) {
			t.Errorf("schema missing %s:\n%s", want, out)
		}
	}
}

func TestLogs(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"stackframe-20260101-000000-debug.log": "old\n",
		"stackframe-20260301-000000-debug.log": "recovered frame function=f\n",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out, err := execute(t, "logs", "--dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	if out != "recovered frame function=f\n" {
		t.Errorf("logs = %q", out)
	}
}

func TestModel(t *testing.T) {
	t.Setenv("STACKFRAME_NO_COLOR", "1")
	report := &analysis.Report{
		Path:      "a.out",
		Recovered: 1,
		Functions: []analysis.FunctionReport{
			{Name: "framed", Addr: 0x400100, Status: analysis.Recovered, Frame: "<{ i64, i32 }>"},
			{Name: "leaf", Addr: 0x400114, Status: analysis.Skipped},
		},
	}
	m := NewModel("a.out", func() (*analysis.Report, error) { return report, nil })
	if !m.loading {
		t.Fatal("model not loading before the report arrives")
	}

	next, _ := m.Update(m.analyzeCmd()())
	m = next.(model)
	if m.loading || m.report != report {
		t.Fatalf("report not applied")
	}
	if n := len(m.functions.Items()); n != 2 {
		t.Errorf("list has %d items, want 2", n)
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(model)
	if m.width != 100 {
		t.Errorf("width = %d", m.width)
	}

	m.cycle()
	if m.mode != viewFunctions {
		t.Fatalf("mode = %d, want function list", m.mode)
	}
	if view := m.View(); !strings.Contains(view, "framed") {
		t.Errorf("function list view:\n%s", view)
	}

	m.showFunction(report.Functions[0])
	if m.mode != viewDetail || !strings.Contains(m.View(), "<{ i64, i32 }>") {
		t.Errorf("detail view:\n%s", m.View())
	}
}
